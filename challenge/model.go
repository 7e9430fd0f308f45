package challenge

import (
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Kind is the interactive step a challenge was issued for. A challenge only
// validates against its own kind.
type Kind string

const (
	KindRegistration   Kind = "registration"
	KindAuthentication Kind = "authentication"
	KindOwnership      Kind = "ownership"
)

// Challenge is a single pending interactive step. It is never mutated after
// being stored: it is either consumed once or swept after expiry.
type Challenge struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Subject  string    `json:"subject,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
	Message  string    `json:"message,omitempty"`
	Metadata Metadata  `json:"metadata"`

	// Session carries the WebAuthn ceremony state for registration and
	// authentication challenges.
	Session *webauthn.SessionData `json:"session,omitempty"`
}

type Metadata struct {
	VerifierName string `json:"verifierName,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	VerifierOrg  string `json:"verifierOrg,omitempty"`
}

func (c Challenge) ExpiresAt(ttl time.Duration) time.Time {
	return c.IssuedAt.Add(ttl)
}

func (c Challenge) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.IssuedAt) > ttl
}

// Binding records that a subject registered one biometric authenticator.
// There is at most one binding per subject.
type Binding struct {
	Subject      string              `json:"subject"`
	CredentialID string              `json:"credentialId"`
	PublicKey    []byte              `json:"publicKey"`
	SignCount    uint32              `json:"signCount"`
	RegisteredAt time.Time           `json:"registeredAt"`
	Credential   webauthn.Credential `json:"credential"`
}

// CredentialInfo is the public view of a subject's binding.
type CredentialInfo struct {
	HasCredential bool
	CredentialID  string
	RegisteredAt  time.Time
}

// normalizeIdentity maps wallet identities onto a single key so that
// checksummed and lower-case addresses refer to the same subject.
func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// maxIdentityLen is the WebAuthn limit on user.id, which carries the subject.
const maxIdentityLen = 64

// ceremonySubject normalizes identity for a WebAuthn ceremony.
func ceremonySubject(identity string) (string, error) {
	subject := normalizeIdentity(identity)
	if subject == "" || len(subject) > maxIdentityLen {
		return "", ErrInvalidIdentity
	}
	return subject, nil
}
