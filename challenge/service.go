package challenge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/sirupsen/logrus"

	"github.com/berkmancenter/equalpass/metrics"
)

const (
	DefaultTTL = 5 * time.Minute

	ceremonyTimeout = 60 * time.Second
	ownershipIDSize = 16

	defaultVerifierName = "Desconocido"
	defaultPurpose      = "Verificación de identidad"
)

type Options struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
	TTL           time.Duration

	Logger  logrus.FieldLogger
	Metrics *metrics.Recorder
	// Clock replaces time.Now; tests use it to move past the expiry window.
	Clock func() time.Time
}

// Service issues, validates and consumes challenges and keeps the WebAuthn
// credential bindings.
type Service struct {
	challenges  Store
	credentials CredentialStore
	webAuthn    *webauthn.WebAuthn

	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Recorder
}

func NewService(challenges Store, credentials CredentialStore, opts Options) (*Service, error) {
	wa, err := newWebAuthn(opts)
	if err != nil {
		return nil, err
	}

	s := &Service{
		challenges:  challenges,
		credentials: credentials,
		webAuthn:    wa,
		ttl:         opts.TTL,
		now:         opts.Clock,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s, nil
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

type OwnershipRequest struct {
	VerifierName string
	Purpose      string
	VerifierOrg  string
}

// GenerateOwnershipChallenge issues a challenge whose message a wallet owner
// signs to prove control of the wallet.
func (s *Service) GenerateOwnershipChallenge(ctx context.Context, req OwnershipRequest) (Challenge, error) {
	id, err := randomHex(ownershipIDSize)
	if err != nil {
		return Challenge{}, err
	}

	verifier := req.VerifierName
	if verifier == "" {
		verifier = defaultVerifierName
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = defaultPurpose
	}

	issuedAt := s.now()
	c := Challenge{
		ID:       id,
		Kind:     KindOwnership,
		IssuedAt: issuedAt,
		Message:  ownershipMessage(verifier, purpose, id, issuedAt),
		Metadata: Metadata{
			VerifierName: req.VerifierName,
			Purpose:      req.Purpose,
			VerifierOrg:  req.VerifierOrg,
		},
	}
	if err := s.put(ctx, c); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

func ownershipMessage(verifier, purpose, id string, issuedAt time.Time) string {
	return "ZK-Scholar Verificación\n" +
		"Verificador: " + verifier + "\n" +
		"Propósito: " + purpose + "\n" +
		"Código: " + id + "\n" +
		"Timestamp: " + strconv.FormatInt(issuedAt.UnixMilli(), 10) + "\n" +
		"Firma este mensaje para probar que eres el dueño de esta wallet."
}

// ValidateChallenge returns the stored challenge when it exists, has the
// requested kind and is inside the expiry window. An expired challenge is
// removed as a side effect.
func (s *Service) ValidateChallenge(ctx context.Context, id string, kind Kind) (Challenge, error) {
	if id == "" {
		return Challenge{}, ErrChallengeNotFound
	}

	c, err := s.challenges.Get(ctx, id)
	if err != nil {
		return Challenge{}, err
	}
	if c.Kind != kind {
		return Challenge{}, ErrChallengeNotFound
	}
	if c.Expired(s.now(), s.ttl) {
		if removed, err := s.challenges.Delete(ctx, id); err == nil && removed {
			s.metrics.ChallengesExpired(1)
		}
		return Challenge{}, ErrChallengeExpired
	}
	return c, nil
}

// Consume removes a validated challenge. Only the first of concurrent
// consumers succeeds; the rest get ErrChallengeNotFound.
func (s *Service) Consume(ctx context.Context, c Challenge) error {
	removed, err := s.challenges.Delete(ctx, c.ID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrChallengeNotFound
	}
	s.metrics.ChallengeConsumed(string(c.Kind))
	return nil
}

func (s *Service) HasCredential(ctx context.Context, identity string) (bool, error) {
	info, err := s.CredentialInfo(ctx, identity)
	if err != nil {
		return false, err
	}
	return info.HasCredential, nil
}

func (s *Service) CredentialInfo(ctx context.Context, identity string) (CredentialInfo, error) {
	b, err := s.credentials.Load(ctx, identity)
	if errors.Is(err, ErrNoCredentialRegistered) {
		return CredentialInfo{}, nil
	}
	if err != nil {
		return CredentialInfo{}, err
	}
	return CredentialInfo{
		HasCredential: true,
		CredentialID:  b.CredentialID,
		RegisteredAt:  b.RegisteredAt,
	}, nil
}

// Sweep removes every challenge older than the TTL.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	removed, err := s.challenges.SweepExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return removed, fmt.Errorf("sweep challenges: %w", err)
	}
	if removed > 0 {
		s.metrics.ChallengesExpired(removed)
		s.log.Infof("Swept %d expired challenges", removed)
	}
	return removed, nil
}

func (s *Service) put(ctx context.Context, c Challenge) error {
	if err := s.challenges.Put(ctx, c); err != nil {
		return fmt.Errorf("store %s challenge: %w", c.Kind, err)
	}
	s.metrics.ChallengeIssued(string(c.Kind))
	return nil
}

func sameIdentity(a, b string) bool {
	return normalizeIdentity(a) == normalizeIdentity(b)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
