package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromRow_MissingNextRunAt(t *testing.T) {
	_, err := FromRow(Row{AggregateType: "order"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestFromRow_Defaults(t *testing.T) {
	now := time.Now().UTC()
	event, err := FromRow(Row{NextRunAt: &now})

	require.NoError(t, err)
	require.Equal(t, StatusPending, event.Status)
	require.Equal(t, 0, event.Attempts)
	require.Nil(t, event.ID)
	require.Nil(t, event.CreatedAt)
	require.Equal(t, now, event.NextRunAt)
}

func TestFromRow_ExplicitFields(t *testing.T) {
	id := int64(7)
	attempts := 2
	now := time.Now().UTC()
	created := now.Add(-time.Hour)

	event, err := FromRow(Row{
		ID:            &id,
		AggregateType: "order",
		AggregateID:   "ord-1",
		EventType:     "order.created",
		Payload:       json.RawMessage(`{"orderId":"42"}`),
		Status:        "retry",
		Attempts:      &attempts,
		NextRunAt:     &now,
		CreatedAt:     &created,
	})

	require.NoError(t, err)
	require.Equal(t, StatusRetry, event.Status)
	require.Equal(t, 2, event.Attempts)
	require.Equal(t, id, *event.ID)
	require.Equal(t, created, *event.CreatedAt)
}

func TestToWire_OmitsNullFields(t *testing.T) {
	now := time.Now().UTC()
	event, err := FromRow(Row{
		AggregateType: "order",
		AggregateID:   "ord-1",
		EventType:     "order.created",
		Payload:       json.RawMessage(`{"orderId":"42"}`),
		NextRunAt:     &now,
	})
	require.NoError(t, err)

	wire := event.ToWire()
	_, hasID := wire["id"]
	_, hasCreatedAt := wire["created_at"]

	require.False(t, hasID)
	require.False(t, hasCreatedAt)
	require.Equal(t, "order.created", wire["event_type"])
	require.Equal(t, now.Format(time.RFC3339Nano), wire["next_run_at"])
}

func TestToWire_IncludesPresentFields(t *testing.T) {
	id := int64(9)
	now := time.Now().UTC()
	created := now.Add(-2 * time.Hour)

	event, err := FromRow(Row{
		ID:        &id,
		NextRunAt: &now,
		CreatedAt: &created,
	})
	require.NoError(t, err)

	wire := event.ToWire()
	require.Equal(t, id, wire["id"])
	require.Equal(t, created.Format(time.RFC3339Nano), wire["created_at"])
}

// TestFromRow_ToWire_RoundTrip covers spec invariant 6: to_wire ∘ from_row of
// the same row yields a document whose non-null fields round-trip through
// from_row to an equal event.
func TestFromRow_ToWire_RoundTrip(t *testing.T) {
	id := int64(3)
	attempts := 1
	now := time.Now().UTC().Truncate(time.Millisecond)

	original, err := FromRow(Row{
		ID:            &id,
		AggregateType: "order",
		AggregateID:   "ord-3",
		EventType:     "order.created",
		Payload:       json.RawMessage(`{"orderId":"3"}`),
		Status:        "dead",
		Attempts:      &attempts,
		NextRunAt:     &now,
	})
	require.NoError(t, err)

	wire := original.ToWire()
	nextRunAt, err := time.Parse(time.RFC3339Nano, wire["next_run_at"].(string))
	require.NoError(t, err)

	roundTripped, err := FromRow(Row{
		ID:            &id,
		AggregateType: wire["aggregate_type"].(string),
		AggregateID:   wire["aggregate_id"].(string),
		EventType:     wire["event_type"].(string),
		Payload:       wire["payload"].(json.RawMessage),
		Status:        wire["status"].(string),
		Attempts:      &attempts,
		NextRunAt:     &nextRunAt,
	})
	require.NoError(t, err)
	require.Equal(t, original, roundTripped)
}
