// Package model holds the in-memory representation of an outbox_event row.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle tag of an outbox row.
type Status string

const (
	StatusPending Status = "pending"
	StatusRetry   Status = "retry"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

// ErrMissingField is returned by FromRow when a required column is absent.
var ErrMissingField = errors.New("model: missing required field")

// Event mirrors a claimed or inspected outbox_event row.
type Event struct {
	ID            *int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        Status
	Attempts      int
	NextRunAt     time.Time
	CreatedAt     *time.Time
}

// Row is the loosely-typed shape a database scan produces; optional fields
// are nil pointers when the column is NULL or was not scanned, and FromRow
// applies their defaults.
type Row struct {
	ID            *int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        string
	Attempts      *int
	NextRunAt     *time.Time
	CreatedAt     *time.Time
}

// FromRow builds an Event from a claimed database row. NextRunAt is the one
// field with no safe default: a row without it cannot be scheduled.
func FromRow(row Row) (Event, error) {
	if row.NextRunAt == nil {
		return Event{}, ErrMissingField
	}

	status := StatusPending
	if row.Status != "" {
		status = Status(row.Status)
	}

	attempts := 0
	if row.Attempts != nil {
		attempts = *row.Attempts
	}

	return Event{
		ID:            row.ID,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		EventType:     row.EventType,
		Payload:       row.Payload,
		Status:        status,
		Attempts:      attempts,
		NextRunAt:     *row.NextRunAt,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// ToWire renders the event for the admin JSON surface. id and created_at are
// omitted when null rather than serialized as zero values.
func (e Event) ToWire() map[string]any {
	wire := map[string]any{
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
		"payload":        json.RawMessage(e.Payload),
		"status":         string(e.Status),
		"attempts":       e.Attempts,
		"next_run_at":    e.NextRunAt.UTC().Format(time.RFC3339Nano),
	}
	if e.ID != nil {
		wire["id"] = *e.ID
	}
	if e.CreatedAt != nil {
		wire["created_at"] = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return wire
}
