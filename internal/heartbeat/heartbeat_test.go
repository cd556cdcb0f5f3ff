package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestBeat_ThenList_ReportsWorker(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Beat(ctx, "worker-01", 4242))

	statuses, enabled, err := r.List(ctx)
	require.NoError(t, err)
	require.True(t, enabled)
	require.Len(t, statuses, 1)
	require.Equal(t, "worker-01", statuses[0].Name)
	require.Equal(t, 4242, statuses[0].PID)
	require.Nil(t, statuses[0].ExitCode)
}

func TestRecordExit_OverwritesWithTerminalInfo(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Beat(ctx, "worker-01", 4242))
	exitedAt := time.Now().UTC()
	require.NoError(t, r.RecordExit(ctx, "worker-01", 4242, 1, exitedAt))

	statuses, _, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.NotNil(t, statuses[0].ExitCode)
	require.Equal(t, 1, *statuses[0].ExitCode)
}

func TestList_NilClient_ReportsDisabled(t *testing.T) {
	r := New(nil)
	statuses, enabled, err := r.List(context.Background())
	require.NoError(t, err)
	require.False(t, enabled)
	require.Empty(t, statuses)
}

func TestBeat_NilClient_NoOp(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Beat(context.Background(), "worker-01", 1))
}
