package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNew_RejectsEmptyDSN verifies the constructor refuses to dial with an
// empty DSN, matching the source's synchronous ValueError on bad input.
func TestNew_RejectsEmptyDSN(t *testing.T) {
	_, err := New(context.Background(), Config{MaxAttempts: 5}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNew_RejectsZeroMaxAttempts(t *testing.T) {
	_, err := New(context.Background(), Config{DSN: "postgres://x", MaxAttempts: 0}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNew_RejectsNegativeRetryBackoff(t *testing.T) {
	_, err := New(context.Background(), Config{
		DSN:          "postgres://x",
		MaxAttempts:  5,
		RetryBackoff: -time.Second,
	}, zap.NewNop())
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// The remaining operations validate their arguments before touching the
// database (spec: value-range errors are programming errors raised
// synchronously). We exercise that validation directly against a
// Repository with a nil pool, since these paths return before any query.
func TestFetchPending_RejectsZeroBatchSize(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.FetchPending(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMarkSuccess_RejectsZeroID(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	err := r.MarkSuccess(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMarkRetry_RejectsNegativeID(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	err := r.MarkRetry(context.Background(), -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFetchDead_RejectsZeroLimit(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.FetchDead(context.Background(), 0, 0, DeadFilter{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFetchDead_RejectsNegativeOffset(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.FetchDead(context.Background(), 10, -1, DeadFilter{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetDead_RejectsZeroID(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.GetDead(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryDead_RejectsZeroID(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.RetryDead(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryDeadBatch_RejectsEmptyList(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.RetryDeadBatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryDeadBatch_RejectsNonPositiveID(t *testing.T) {
	r := &Repository{logger: zap.NewNop()}
	_, err := r.RetryDeadBatch(context.Background(), []int64{1, 0, 3})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
