package challenge

import (
	"context"
	"time"
)

// Store holds outstanding challenges keyed by id.
type Store interface {
	// Put stores a challenge, replacing any challenge with the same id.
	Put(ctx context.Context, c Challenge) error
	// Get returns ErrChallengeNotFound when no challenge has the id.
	Get(ctx context.Context, id string) (Challenge, error)
	// Delete removes a challenge and reports whether it was present. Exactly
	// one of several concurrent deletes of the same id reports true.
	Delete(ctx context.Context, id string) (bool, error)
	// SweepExpired removes every challenge issued before cutoff and returns
	// how many were removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// CredentialStore holds at most one binding per subject.
type CredentialStore interface {
	// Save stores or overwrites the binding of b.Subject.
	Save(ctx context.Context, b Binding) error
	// Load returns ErrNoCredentialRegistered when the subject has no binding.
	Load(ctx context.Context, subject string) (Binding, error)
}
