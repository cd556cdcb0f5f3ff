package replayguard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestCheck_FirstRequestSucceeds(t *testing.T) {
	g := newTestGuard(t)
	require.NoError(t, g.Check(context.Background(), "req-1"))
}

func TestCheck_DuplicateRequestRejected(t *testing.T) {
	g := newTestGuard(t)
	ctx := context.Background()
	require.NoError(t, g.Check(ctx, "req-1"))
	require.ErrorIs(t, g.Check(ctx, "req-1"), ErrDuplicateRequest)
}

func TestCheck_NilClientAlwaysSucceeds(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.Check(context.Background(), "req-1"))
	require.NoError(t, g.Check(context.Background(), "req-1"))
}

func TestCheck_EmptyKeyAlwaysSucceeds(t *testing.T) {
	g := newTestGuard(t)
	require.NoError(t, g.Check(context.Background(), ""))
	require.NoError(t, g.Check(context.Background(), ""))
}
