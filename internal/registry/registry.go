// Package registry maps event types to the handlers that process them.
package registry

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler processes the payload of a single outbox event. Any returned
// error is treated as a retryable handler failure by the worker; a nil
// return is success. Handlers are expected to be idempotent — the
// dispatcher's contract is at-least-once delivery.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Outcome is the three-way result of Dispatch.
type Outcome int

const (
	// Ok means the handler ran and returned no error.
	Ok Outcome = iota
	// NotFound means no handler is registered for the event type.
	NotFound
	// Failed means a handler ran and returned an error.
	Failed
)

// Registry is a concurrency-safe event_type -> Handler map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for an event type.
func (r *Registry) Register(eventType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

// Dispatch invokes the handler registered for event.EventType, if any.
// A missing registration is reported as NotFound rather than an error,
// so the worker can fold it into the same retry/dead accounting as any
// other handler failure (spec: handler-not-found is a handler failure).
func (r *Registry) Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (Outcome, error) {
	r.mu.RLock()
	handler, ok := r.handlers[eventType]
	r.mu.RUnlock()

	if !ok {
		return NotFound, nil
	}

	if err := handler(ctx, payload); err != nil {
		return Failed, err
	}
	return Ok, nil
}
