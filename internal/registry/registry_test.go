package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch_NotFound(t *testing.T) {
	reg := New()

	outcome, err := reg.Dispatch(context.Background(), "unknown.event", nil)

	require.NoError(t, err)
	require.Equal(t, NotFound, outcome)
}

func TestDispatch_Ok(t *testing.T) {
	reg := New()
	var seen json.RawMessage
	reg.Register("order.created", func(_ context.Context, payload json.RawMessage) error {
		seen = payload
		return nil
	})

	outcome, err := reg.Dispatch(context.Background(), "order.created", json.RawMessage(`{"orderId":"42"}`))

	require.NoError(t, err)
	require.Equal(t, Ok, outcome)
	require.JSONEq(t, `{"orderId":"42"}`, string(seen))
}

func TestDispatch_Failed(t *testing.T) {
	reg := New()
	wantErr := errors.New("boom")
	reg.Register("order.created", func(_ context.Context, _ json.RawMessage) error {
		return wantErr
	})

	outcome, err := reg.Dispatch(context.Background(), "order.created", nil)

	require.Equal(t, Failed, outcome)
	require.ErrorIs(t, err, wantErr)
}

func TestRegister_Overwrite(t *testing.T) {
	reg := New()
	reg.Register("order.created", func(_ context.Context, _ json.RawMessage) error {
		return errors.New("old")
	})
	reg.Register("order.created", func(_ context.Context, _ json.RawMessage) error {
		return nil
	})

	outcome, err := reg.Dispatch(context.Background(), "order.created", nil)

	require.NoError(t, err)
	require.Equal(t, Ok, outcome)
}
