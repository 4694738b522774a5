package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/internal/netfail"
	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each state as a JSON string whose key TTL matches the
// state expiry. Keys are derived from the token hash.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisBackend creates a [RedisBackend] under prefix.
func NewRedisBackend(rdb redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "oas"
	}
	return &RedisBackend{redis: rdb, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used for expiry checks.
func (b *RedisBackend) WithClock(now func() time.Time) *RedisBackend {
	if now != nil {
		b.now = now
	}
	return b
}

func (b *RedisBackend) key(token string) string {
	return b.prefix + ":" + internal.HashToken(token)
}

func (b *RedisBackend) Put(ctx context.Context, state *State) error {
	ttl := state.ExpiresAt.Sub(b.now())
	if ttl <= 0 {
		return errors.New("oauthstate: state already expired")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := b.redis.Set(ctx, b.key(state.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, netfail.Classify("state.put", err))
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, token string) (*State, error) {
	data, err := b.redis.Get(ctx, b.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, netfail.Classify("state.get", err))
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, netfail.Decode("state.get", err))
	}
	return &state, nil
}

func (b *RedisBackend) Delete(ctx context.Context, token string) error {
	if err := b.redis.Del(ctx, b.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, netfail.Classify("state.delete", err))
	}
	return nil
}
