package challenge

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	userDisplayName = "ZK-Scholar Student"
	userNamePrefix  = "student_"
)

var credentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
	{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
}

func newWebAuthn(opts Options) (*webauthn.WebAuthn, error) {
	name := opts.RPDisplayName
	if name == "" {
		name = "ZK-Scholar"
	}
	timeout := webauthn.TimeoutConfig{Timeout: ceremonyTimeout, TimeoutUVD: ceremonyTimeout}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: name,
		RPID:          opts.RPID,
		RPOrigins:     opts.RPOrigins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			UserVerification:   protocol.VerificationPreferred,
			RequireResidentKey: protocol.ResidentKeyNotRequired(),
		},
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        timeout,
			Registration: timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return wa, nil
}

// user adapts a wallet identity to webauthn.User.
type user struct {
	identity string
	binding  *Binding
}

var _ webauthn.User = (*user)(nil)

func (u *user) WebAuthnID() []byte {
	return []byte(u.identity)
}

func (u *user) WebAuthnName() string {
	id := u.identity
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return userNamePrefix + id
}

func (u *user) WebAuthnDisplayName() string {
	return userDisplayName
}

func (u *user) WebAuthnCredentials() []webauthn.Credential {
	if u.binding == nil {
		return nil
	}
	return []webauthn.Credential{u.binding.Credential}
}

type RegistrationOptions struct {
	Challenge Challenge
	PublicKey protocol.PublicKeyCredentialCreationOptions
}

type AuthenticationOptions struct {
	Challenge Challenge
	PublicKey protocol.PublicKeyCredentialRequestOptions
}

// GenerateRegistrationChallenge starts a WebAuthn registration ceremony for
// identity. The stored challenge id is the base64url WebAuthn challenge.
func (s *Service) GenerateRegistrationChallenge(ctx context.Context, identity string) (RegistrationOptions, error) {
	subject, err := ceremonySubject(identity)
	if err != nil {
		return RegistrationOptions{}, err
	}

	creation, session, err := s.webAuthn.BeginRegistration(&user{identity: subject},
		webauthn.WithCredentialParameters(credentialParameters),
	)
	if err != nil {
		return RegistrationOptions{}, fmt.Errorf("begin registration: %w", err)
	}

	c := Challenge{
		ID:       session.Challenge,
		Kind:     KindRegistration,
		Subject:  subject,
		IssuedAt: s.now(),
		Session:  session,
	}
	if err := s.put(ctx, c); err != nil {
		return RegistrationOptions{}, err
	}
	return RegistrationOptions{Challenge: c, PublicKey: creation.Response}, nil
}

// CompleteRegistration verifies an attestation response and binds the new
// credential to identity, replacing any earlier binding.
func (s *Service) CompleteRegistration(ctx context.Context, identity string, credentialJSON []byte) (Binding, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(credentialJSON))
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %s", ErrWebAuthnVerification, describe(err))
	}

	c, err := s.ValidateChallenge(ctx, parsed.Response.CollectedClientData.Challenge, KindRegistration)
	if err != nil {
		return Binding{}, err
	}
	if !sameIdentity(c.Subject, identity) {
		return Binding{}, ErrChallengeIdentityMismatch
	}
	if c.Session == nil {
		return Binding{}, ErrChallengeNotFound
	}

	cred, err := s.webAuthn.CreateCredential(&user{identity: c.Subject}, *c.Session, parsed)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %s", ErrWebAuthnVerification, describe(err))
	}
	if err := s.Consume(ctx, c); err != nil {
		return Binding{}, err
	}

	b := Binding{
		Subject:      c.Subject,
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		RegisteredAt: s.now(),
		Credential:   *cred,
	}
	if err := s.credentials.Save(ctx, b); err != nil {
		return Binding{}, fmt.Errorf("save binding: %w", err)
	}
	s.log.WithField("identity", c.Subject).Info("WebAuthn credential registered")
	return b, nil
}

// GenerateAuthenticationChallenge starts an assertion ceremony restricted to
// the credential bound to identity.
func (s *Service) GenerateAuthenticationChallenge(ctx context.Context, identity string) (AuthenticationOptions, error) {
	subject, err := ceremonySubject(identity)
	if err != nil {
		return AuthenticationOptions{}, err
	}

	b, err := s.credentials.Load(ctx, subject)
	if err != nil {
		return AuthenticationOptions{}, err
	}

	assertion, session, err := s.webAuthn.BeginLogin(&user{identity: subject, binding: &b},
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return AuthenticationOptions{}, fmt.Errorf("begin login: %w", err)
	}

	c := Challenge{
		ID:       session.Challenge,
		Kind:     KindAuthentication,
		Subject:  subject,
		IssuedAt: s.now(),
		Session:  session,
	}
	if err := s.put(ctx, c); err != nil {
		return AuthenticationOptions{}, err
	}
	return AuthenticationOptions{Challenge: c, PublicKey: assertion.Response}, nil
}

// VerifyAuthentication checks an assertion against the stored public key and
// signature counter, then consumes the challenge it answers.
func (s *Service) VerifyAuthentication(ctx context.Context, identity string, assertionJSON []byte) (Binding, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(assertionJSON))
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %s", ErrWebAuthnVerification, describe(err))
	}

	c, err := s.ValidateChallenge(ctx, parsed.Response.CollectedClientData.Challenge, KindAuthentication)
	if err != nil {
		return Binding{}, err
	}
	if !sameIdentity(c.Subject, identity) {
		return Binding{}, ErrChallengeIdentityMismatch
	}
	if c.Session == nil {
		return Binding{}, ErrChallengeNotFound
	}

	b, err := s.credentials.Load(ctx, c.Subject)
	if err != nil {
		return Binding{}, err
	}

	cred, err := s.webAuthn.ValidateLogin(&user{identity: c.Subject, binding: &b}, *c.Session, parsed)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %s", ErrWebAuthnVerification, describe(err))
	}
	if cred.Authenticator.CloneWarning {
		return Binding{}, fmt.Errorf("%w: signature counter did not increase", ErrWebAuthnVerification)
	}
	if err := s.Consume(ctx, c); err != nil {
		return Binding{}, err
	}

	b.Credential = *cred
	b.SignCount = cred.Authenticator.SignCount
	if err := s.credentials.Save(ctx, b); err != nil {
		return Binding{}, fmt.Errorf("save binding: %w", err)
	}
	return b, nil
}

func describe(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		if perr.DevInfo != "" {
			return perr.Details + ": " + perr.DevInfo
		}
		return perr.Details
	}
	return err.Error()
}
