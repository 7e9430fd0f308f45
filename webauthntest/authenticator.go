// Package webauthntest provides a software WebAuthn authenticator that
// produces "none" attestations and ES256 assertions for tests.
package webauthntest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttested     = 0x40

	coseKeyTypeEC2 = 2
	coseAlgES256   = -7
	coseCurveP256  = 1
)

var b64 = base64.RawURLEncoding

// Authenticator holds one P-256 credential scoped to RPID and Origin.
type Authenticator struct {
	RPID   string
	Origin string

	key          *ecdsa.PrivateKey
	credentialID []byte
	userHandle   []byte
	counter      uint32
	encMode      cbor.EncMode
}

func New(rpID, origin string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	em, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		RPID:         rpID,
		Origin:       origin,
		key:          key,
		credentialID: id,
		encMode:      em,
	}, nil
}

func (a *Authenticator) CredentialID() string {
	return b64.EncodeToString(a.credentialID)
}

type clientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin"`
}

type attestationResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject"`
}

type assertionResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

type publicKeyCredential struct {
	ID       string `json:"id"`
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response any    `json:"response"`
}

// Register answers a registration challenge (base64url, as sent in the
// creation options) and returns the credential JSON a browser would post.
func (a *Authenticator) Register(challenge string, userHandle []byte) ([]byte, error) {
	a.userHandle = userHandle

	cdj, err := json.Marshal(clientData{Type: "webauthn.create", Challenge: challenge, Origin: a.Origin})
	if err != nil {
		return nil, err
	}

	coseKey, err := a.encMode.Marshal(map[int]any{
		1:  coseKeyTypeEC2,
		3:  coseAlgES256,
		-1: coseCurveP256,
		-2: a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		-3: a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	if err != nil {
		return nil, fmt.Errorf("encode cose key: %w", err)
	}

	authData := a.authData(flagUserPresent|flagUserVerified|flagAttested, 0)
	authData = append(authData, make([]byte, 16)...) // aaguid
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.credentialID)))
	authData = append(authData, a.credentialID...)
	authData = append(authData, coseKey...)

	attObj, err := a.encMode.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation object: %w", err)
	}

	return json.Marshal(publicKeyCredential{
		ID:    a.CredentialID(),
		RawID: a.CredentialID(),
		Type:  "public-key",
		Response: attestationResponse{
			ClientDataJSON:    b64.EncodeToString(cdj),
			AttestationObject: b64.EncodeToString(attObj),
		},
	})
}

// Assert signs an authentication challenge, advancing the signature counter.
func (a *Authenticator) Assert(challenge string) ([]byte, error) {
	return a.assert(challenge, a.key)
}

// AssertWithForeignKey signs with a fresh key that was never registered, as
// a cloned or stolen credential id on another device would.
func (a *Authenticator) AssertWithForeignKey(challenge string) ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return a.assert(challenge, key)
}

// ResetCounter rewinds the signature counter, making the next assertion look
// like it came from a cloned authenticator.
func (a *Authenticator) ResetCounter() {
	a.counter = 0
}

func (a *Authenticator) assert(challenge string, key *ecdsa.PrivateKey) ([]byte, error) {
	a.counter++

	cdj, err := json.Marshal(clientData{Type: "webauthn.get", Challenge: challenge, Origin: a.Origin})
	if err != nil {
		return nil, err
	}
	authData := a.authData(flagUserPresent|flagUserVerified, a.counter)

	clientHash := sha256.Sum256(cdj)
	digest := sha256.Sum256(append(append([]byte{}, authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, err
	}

	resp := assertionResponse{
		ClientDataJSON:    b64.EncodeToString(cdj),
		AuthenticatorData: b64.EncodeToString(authData),
		Signature:         b64.EncodeToString(sig),
	}
	if len(a.userHandle) > 0 {
		resp.UserHandle = b64.EncodeToString(a.userHandle)
	}
	return json.Marshal(publicKeyCredential{
		ID:       a.CredentialID(),
		RawID:    a.CredentialID(),
		Type:     "public-key",
		Response: resp,
	})
}

func (a *Authenticator) authData(flags byte, counter uint32) []byte {
	rpHash := sha256.Sum256([]byte(a.RPID))
	data := append([]byte{}, rpHash[:]...)
	data = append(data, flags)
	return binary.BigEndian.AppendUint32(data, counter)
}
