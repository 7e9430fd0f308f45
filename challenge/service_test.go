package challenge

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/equalpass/logging"
	"github.com/berkmancenter/equalpass/webauthntest"
)

const (
	testRPID     = "localhost"
	testOrigin   = "http://localhost:3000"
	testIdentity = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewService(NewMemoryStore(), NewMemoryCredentialStore(), Options{
		RPDisplayName: "ZK-Scholar",
		RPID:          testRPID,
		RPOrigins:     []string{testOrigin},
		TTL:           DefaultTTL,
		Logger:        logging.Discard(),
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	return s, clock
}

func register(t *testing.T, s *Service, identity string) *webauthntest.Authenticator {
	t.Helper()
	ctx := context.Background()

	opts, err := s.GenerateRegistrationChallenge(ctx, identity)
	require.NoError(t, err)

	auth, err := webauthntest.New(testRPID, testOrigin)
	require.NoError(t, err)
	cred, err := auth.Register(opts.Challenge.ID, []byte(normalizeIdentity(identity)))
	require.NoError(t, err)

	_, err = s.CompleteRegistration(ctx, identity, cred)
	require.NoError(t, err)
	return auth
}

func TestValidateChallenge_ExpiryWindow(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	c, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{VerifierName: "Acme"})
	require.NoError(t, err)

	clock.Advance(DefaultTTL - time.Second)
	_, err = s.ValidateChallenge(ctx, c.ID, KindOwnership)
	assert.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = s.ValidateChallenge(ctx, c.ID, KindOwnership)
	assert.ErrorIs(t, err, ErrChallengeExpired)

	// removed after the expired validation
	_, err = s.ValidateChallenge(ctx, c.ID, KindOwnership)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestValidateChallenge_WrongKind(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	c, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{})
	require.NoError(t, err)

	_, err = s.ValidateChallenge(ctx, c.ID, KindAuthentication)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = s.ValidateChallenge(ctx, "", KindOwnership)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestConsume_SingleUse(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	c, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{})
	require.NoError(t, err)

	require.NoError(t, s.Consume(ctx, c))
	assert.ErrorIs(t, s.Consume(ctx, c), ErrChallengeNotFound)

	_, err = s.ValidateChallenge(ctx, c.ID, KindOwnership)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestConsume_ConcurrentOnlyOneWins(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	c, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(ctx, c) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestGenerateOwnershipChallenge_Message(t *testing.T) {
	s, clock := newTestService(t)

	c, err := s.GenerateOwnershipChallenge(context.Background(), OwnershipRequest{})
	require.NoError(t, err)

	assert.Len(t, c.ID, 32)
	assert.Contains(t, c.Message, "Verificador: Desconocido\n")
	assert.Contains(t, c.Message, "Propósito: Verificación de identidad\n")
	assert.Contains(t, c.Message, "Código: "+c.ID+"\n")
	assert.Contains(t, c.Message, "Firma este mensaje para probar que eres el dueño de esta wallet.")
	assert.Equal(t, clock.Now().Add(DefaultTTL), c.ExpiresAt(s.TTL()))

	named, err := s.GenerateOwnershipChallenge(context.Background(), OwnershipRequest{VerifierName: "Acme Corp", Purpose: "Descuento"})
	require.NoError(t, err)
	assert.Contains(t, named.Message, "Verificador: Acme Corp\n")
	assert.Contains(t, named.Message, "Propósito: Descuento\n")
}

func TestAuthenticationChallenge_RequiresRegistration(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
	assert.ErrorIs(t, err, ErrNoCredentialRegistered)

	register(t, s, testIdentity)

	opts, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, KindAuthentication, opts.Challenge.Kind)
	assert.Len(t, opts.PublicKey.AllowedCredentials, 1)
}

func TestGenerateRegistrationChallenge_IdentityBounds(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for _, identity := range []string{"", "   ", strings.Repeat("a", maxIdentityLen+1)} {
		_, err := s.GenerateRegistrationChallenge(ctx, identity)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
		_, err = s.GenerateAuthenticationChallenge(ctx, identity)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	}

	opts, err := s.GenerateRegistrationChallenge(ctx, strings.Repeat("a", maxIdentityLen))
	require.NoError(t, err)
	assert.Len(t, []byte(opts.PublicKey.User.ID.(protocol.URLEncodedBase64)), maxIdentityLen)
}

func TestRegistration_EndToEnd(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.CredentialInfo(ctx, testIdentity)
	require.NoError(t, err)
	assert.False(t, info.HasCredential)

	opts, err := s.GenerateRegistrationChallenge(ctx, testIdentity)
	require.NoError(t, err)
	assert.Equal(t, "student_"+normalizeIdentity(testIdentity)[len(testIdentity)-8:], opts.PublicKey.User.Name)
	assert.Equal(t, "ZK-Scholar Student", opts.PublicKey.User.DisplayName)
	assert.Len(t, opts.PublicKey.Parameters, 2)

	auth, err := webauthntest.New(testRPID, testOrigin)
	require.NoError(t, err)
	cred, err := auth.Register(opts.Challenge.ID, []byte(normalizeIdentity(testIdentity)))
	require.NoError(t, err)

	b, err := s.CompleteRegistration(ctx, testIdentity, cred)
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialID(), b.CredentialID)

	// lookups are case-insensitive
	info, err = s.CredentialInfo(ctx, normalizeIdentity(testIdentity))
	require.NoError(t, err)
	assert.True(t, info.HasCredential)
	assert.Equal(t, auth.CredentialID(), info.CredentialID)

	_, err = s.CompleteRegistration(ctx, testIdentity, cred)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestCompleteRegistration_IdentityMismatch(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	opts, err := s.GenerateRegistrationChallenge(ctx, testIdentity)
	require.NoError(t, err)

	auth, err := webauthntest.New(testRPID, testOrigin)
	require.NoError(t, err)
	cred, err := auth.Register(opts.Challenge.ID, []byte(normalizeIdentity(testIdentity)))
	require.NoError(t, err)

	_, err = s.CompleteRegistration(ctx, "0x0000000000000000000000000000000000000001", cred)
	assert.ErrorIs(t, err, ErrChallengeIdentityMismatch)
}

func TestCompleteRegistration_Malformed(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.CompleteRegistration(context.Background(), testIdentity, []byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, ErrWebAuthnVerification)
}

func TestVerifyAuthentication(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	auth := register(t, s, testIdentity)

	opts, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
	require.NoError(t, err)
	assertion, err := auth.Assert(opts.Challenge.ID)
	require.NoError(t, err)

	b, err := s.VerifyAuthentication(ctx, testIdentity, assertion)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b.SignCount)

	// replaying the same assertion hits the consumed challenge
	_, err = s.VerifyAuthentication(ctx, testIdentity, assertion)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyAuthentication_WrongKey(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	auth := register(t, s, testIdentity)

	opts, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
	require.NoError(t, err)
	assertion, err := auth.AssertWithForeignKey(opts.Challenge.ID)
	require.NoError(t, err)

	_, err = s.VerifyAuthentication(ctx, testIdentity, assertion)
	assert.ErrorIs(t, err, ErrWebAuthnVerification)

	// a failed assertion does not consume the challenge
	_, err = s.ValidateChallenge(ctx, opts.Challenge.ID, KindAuthentication)
	assert.NoError(t, err)
}

func TestVerifyAuthentication_CounterRegression(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	auth := register(t, s, testIdentity)

	for i := 0; i < 2; i++ {
		if i == 1 {
			auth.ResetCounter()
		}
		opts, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
		require.NoError(t, err)
		assertion, err := auth.Assert(opts.Challenge.ID)
		require.NoError(t, err)

		_, err = s.VerifyAuthentication(ctx, testIdentity, assertion)
		if i == 0 {
			require.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrWebAuthnVerification)
		}
	}
}

func TestVerifyAuthentication_IdentityMismatch(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	auth := register(t, s, testIdentity)

	opts, err := s.GenerateAuthenticationChallenge(ctx, testIdentity)
	require.NoError(t, err)
	assertion, err := auth.Assert(opts.Challenge.ID)
	require.NoError(t, err)

	_, err = s.VerifyAuthentication(ctx, "0x0000000000000000000000000000000000000002", assertion)
	assert.ErrorIs(t, err, ErrChallengeIdentityMismatch)
}

func TestSweep(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	old, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{})
	require.NoError(t, err)
	clock.Advance(4 * time.Minute)
	fresh, err := s.GenerateOwnershipChallenge(ctx, OwnershipRequest{})
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.challenges.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	_, err = s.ValidateChallenge(ctx, fresh.ID, KindOwnership)
	assert.NoError(t, err)
}

func TestStartSweeper_StopsWithContext(t *testing.T) {
	s, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.NoError(t, s.StartSweeper(ctx, time.Second))
}
