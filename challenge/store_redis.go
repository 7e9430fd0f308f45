package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengePrefix  = "equalpass:challenge:"
	credentialPrefix = "equalpass:credential:"
)

// RedisStore keeps challenges in Redis so several instances can share them.
// Keys carry a Redis expiry of twice the challenge TTL; expiry inside the TTL
// window is still decided by the service from IssuedAt.
type RedisStore struct {
	client *redis.Client
	keyTTL time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, keyTTL: 2 * ttl}
}

func (s *RedisStore) Put(ctx context.Context, c Challenge) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengePrefix+c.ID, data, s.keyTTL).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Challenge, error) {
	data, err := s.client.Get(ctx, challengePrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("load challenge: %w", err)
	}

	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return c, nil
}

// Delete relies on DEL reporting the number of removed keys: only one of
// several concurrent callers sees 1.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, challengePrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("delete challenge: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, challengePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("load challenge %s: %w", key, err)
		}

		var c Challenge
		if err := json.Unmarshal(data, &c); err != nil || c.IssuedAt.Before(cutoff) {
			n, err := s.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("delete challenge %s: %w", key, err)
			}
			removed += int(n)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan challenges: %w", err)
	}
	return removed, nil
}

// RedisCredentialStore keeps bindings without expiry.
type RedisCredentialStore struct {
	client *redis.Client
}

func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{client: client}
}

func (s *RedisCredentialStore) Save(ctx context.Context, b Binding) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}
	if err := s.client.Set(ctx, credentialPrefix+normalizeIdentity(b.Subject), data, 0).Err(); err != nil {
		return fmt.Errorf("store binding: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Load(ctx context.Context, subject string) (Binding, error) {
	data, err := s.client.Get(ctx, credentialPrefix+normalizeIdentity(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Binding{}, ErrNoCredentialRegistered
	}
	if err != nil {
		return Binding{}, fmt.Errorf("load binding: %w", err)
	}

	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return Binding{}, fmt.Errorf("decode binding: %w", err)
	}
	return b, nil
}
