package challenge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("EQUALPASS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EQUALPASS_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client, time.Minute)

	now := time.Now()
	c := Challenge{ID: "redis-test-" + now.Format("150405.000"), Kind: KindOwnership, IssuedAt: now.Add(-2 * time.Minute)}
	require.NoError(t, store.Put(ctx, c))

	got, err := store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Kind, got.Kind)

	removed, err := store.SweepExpired(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)

	_, err = store.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	require.NoError(t, store.Put(ctx, c))
	ok, err := store.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCredentialStore(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	store := NewRedisCredentialStore(client)

	subject := "0xRedisTest" + time.Now().Format("150405")
	_, err := store.Load(ctx, subject)
	assert.ErrorIs(t, err, ErrNoCredentialRegistered)

	require.NoError(t, store.Save(ctx, Binding{Subject: subject, CredentialID: "abc", SignCount: 3}))
	b, err := store.Load(ctx, normalizeIdentity(subject))
	require.NoError(t, err)
	assert.Equal(t, "abc", b.CredentialID)
	assert.Equal(t, uint32(3), b.SignCount)

	client.Del(ctx, credentialPrefix+normalizeIdentity(subject))
}
