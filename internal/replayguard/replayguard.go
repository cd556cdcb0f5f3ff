// Package replayguard dedupes DLQ replay admin calls by an
// operator-supplied idempotency key, adapted from the teacher's
// pkg/idempotency Redis SETNX checker.
package replayguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDuplicateRequest is returned when the same idempotency key was
// already seen within its TTL.
var ErrDuplicateRequest = errors.New("replayguard: duplicate request detected")

const (
	// DefaultTTL bounds how long a replay request is remembered.
	DefaultTTL = 1 * time.Hour
	keyPrefix  = "dispatchbox:replay:"
)

// Guard is a Redis-backed, SETNX-based dedupe for DLQ replay calls.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Guard. A nil client is valid: Check then always succeeds
// (dedupe disabled), matching "absent the header, behavior is unchanged."
func New(client *redis.Client) *Guard {
	return &Guard{client: client, ttl: DefaultTTL}
}

// WithTTL overrides the default key lifetime.
func (g *Guard) WithTTL(ttl time.Duration) *Guard {
	g.ttl = ttl
	return g
}

// Check claims key for the guard's TTL. It returns ErrDuplicateRequest if
// key was already claimed and not yet expired.
func (g *Guard) Check(ctx context.Context, key string) error {
	if g.client == nil || key == "" {
		return nil
	}

	claimed, err := g.client.SetNX(ctx, keyPrefix+key, "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("replayguard: check failed: %w", err)
	}
	if !claimed {
		return ErrDuplicateRequest
	}
	return nil
}
