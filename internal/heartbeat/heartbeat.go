// Package heartbeat tracks worker liveness in Redis so the admin surface
// can report which worker processes are alive without talking to them
// directly, adapted from the teacher's redis.Client reuse pattern in
// internal/ws/subscriber.go.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "dispatchbox:heartbeat:"
	// DefaultTTL is comfortably longer than the expected beat interval so
	// a worker that misses one beat doesn't flicker to "not seen."
	DefaultTTL = 30 * time.Second
)

// Status is the last-known state of one worker process.
type Status struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	LastSeen  time.Time `json:"last_seen"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// Registry records and reports worker liveness via Redis keys with a TTL,
// so a crashed worker's entry naturally expires rather than lying around.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Registry. A nil client is valid: Beat becomes a no-op and
// List always returns empty, which the admin surface reports as 501.
func New(client *redis.Client) *Registry {
	return &Registry{client: client, ttl: DefaultTTL}
}

// Beat records that name (pid) is alive right now.
func (r *Registry) Beat(ctx context.Context, name string, pid int) error {
	if r.client == nil {
		return nil
	}
	status := Status{Name: name, PID: pid, LastSeen: time.Now().UTC()}
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+name, body, r.ttl).Err()
}

// RecordExit overwrites name's entry with its terminal exit info, kept
// around for the registry's TTL so a brief window after a crash is still
// visible to `/api/workers` (the supervisor's ExitHook feeds this).
func (r *Registry) RecordExit(ctx context.Context, name string, pid int, exitCode int, exitedAt time.Time) error {
	if r.client == nil {
		return nil
	}
	status := Status{Name: name, PID: pid, LastSeen: exitedAt, ExitCode: &exitCode, ExitedAt: &exitedAt}
	body, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+name, body, r.ttl).Err()
}

// List returns every worker status currently tracked. Enabled reports
// whether a live client backs this registry, distinguishing "no client
// configured" (501 at the admin layer) from "no workers yet" (empty list).
func (r *Registry) List(ctx context.Context) (statuses []Status, enabled bool, err error) {
	if r.client == nil {
		return nil, false, nil
	}

	keys, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, true, fmt.Errorf("heartbeat: list keys: %w", err)
	}

	for _, key := range keys {
		body, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, true, fmt.Errorf("heartbeat: read %s: %w", key, err)
		}
		var status Status
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, true, fmt.Errorf("heartbeat: decode %s: %w", key, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, true, nil
}
