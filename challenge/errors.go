package challenge

import "errors"

var (
	ErrChallengeNotFound         = errors.New("challenge not found")
	ErrChallengeExpired          = errors.New("challenge expired")
	ErrChallengeIdentityMismatch = errors.New("challenge does not belong to this identity")
	ErrNoCredentialRegistered    = errors.New("no webauthn credential registered for this identity")
	ErrSignatureMismatch         = errors.New("signature does not match the expected signer")
	ErrWebAuthnVerification      = errors.New("webauthn verification failed")
	ErrInvalidIdentity           = errors.New("identity must be between 1 and 64 bytes")
)
