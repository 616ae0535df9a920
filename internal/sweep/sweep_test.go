package sweep

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/illsync/internal/broker"
	"github.com/steveyegge/illsync/internal/broker/brokertest"
	"github.com/steveyegge/illsync/internal/lifecycle"
	"github.com/steveyegge/illsync/internal/storage/memory"
	"github.com/steveyegge/illsync/internal/types"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunRefreshesOpenRequests(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	srv := brokertest.New(t, "Z")
	svc, err := lifecycle.New(store, srv.Client(), lifecycle.WithLogger(quiet()))
	require.NoError(t, err)

	create := func(orderID, raw string) int64 {
		srv.AddRequest(broker.ILLRequest{RequestID: orderID, Status: raw, LastModified: "T1"})
		rec := srv.Request(orderID)
		out := svc.Create(ctx, lifecycle.CreateParams{Direction: types.DirectionIncoming, Request: &rec})
		require.Zero(t, out.Error, "%+v", out)
		return out.Value["request_id"].(int64)
	}
	changed := create("1", "Ny")
	unchanged := create("2", "Läst")
	broken := create("3", "Ny")
	create("4", "Levererad")

	srv.SetStatus("1", "Läst", "T2")
	srv.SetStatus("3", "Avslutad", "T2")

	// Closed and cancelled requests are left alone.
	closed := &types.Request{OrderID: "5", Status: "IN_AVSL", Direction: types.DirectionIncoming, Backend: "Libris"}
	require.NoError(t, store.CreateRequest(ctx, closed))
	cancelled := &types.Request{Status: "REQREV", Direction: types.DirectionIncoming, Backend: "Libris"}
	require.NoError(t, store.CreateRequest(ctx, cancelled))
	noOrder := &types.Request{Status: "IN_LAST", Direction: types.DirectionIncoming, Backend: "Libris"}
	require.NoError(t, store.CreateRequest(ctx, noOrder))

	gets := srv.Gets()
	summary, err := New(store, svc, WithConcurrency(2), WithLogger(quiet())).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.Results, 4)
	assert.Equal(t, gets+4, srv.Gets(), "one fetch per open request")
	assert.Empty(t, srv.Posts())

	byID := map[int64]Result{}
	for _, r := range summary.Results {
		byID[r.RequestID] = r
	}
	assert.True(t, byID[changed].Changed)
	assert.Equal(t, "IN_LAST", byID[changed].To)
	assert.False(t, byID[unchanged].Changed)
	assert.Contains(t, byID[broken].Error, types.StatusUnmapped)
	_, touched := byID[closed.ID]
	assert.False(t, touched)
}

type countingRefresher struct {
	mu      sync.Mutex
	calls   map[int64]int
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *countingRefresher) Refresh(ctx context.Context, id int64) types.Outcome {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.mu.Lock()
	c.calls[id]++
	c.mu.Unlock()
	return types.Outcome{Status: "IN_LAST"}
}

func TestRunBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for i := 0; i < 12; i++ {
		r := &types.Request{OrderID: string(rune('a' + i)), Status: "IN_LAST", Direction: types.DirectionIncoming, Backend: "Libris"}
		require.NoError(t, store.CreateRequest(ctx, r))
	}
	ref := &countingRefresher{calls: map[int64]int{}}

	summary, err := New(store, ref, WithConcurrency(3), WithLogger(quiet())).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Unchanged)
	assert.LessOrEqual(t, ref.maxSeen.Load(), int32(3))
	for id, n := range ref.calls {
		assert.Equal(t, 1, n, "request %d refreshed %d times", id, n)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memory.New()
	require.NoError(t, store.CreateRequest(context.Background(),
		&types.Request{OrderID: "x", Status: "IN_LAST", Direction: types.DirectionIncoming, Backend: "Libris"}))

	_, err := New(store, &countingRefresher{calls: map[int64]int{}}, WithLogger(quiet())).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithDirection(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateRequest(ctx, &types.Request{OrderID: "in", Status: "IN_LAST", Direction: types.DirectionIncoming, Backend: "Libris"}))
	require.NoError(t, store.CreateRequest(ctx, &types.Request{OrderID: "out", Status: "OUT_LAST", Direction: types.DirectionOutgoing, Backend: "Libris"}))

	ref := &countingRefresher{calls: map[int64]int{}}
	summary, err := New(store, ref, WithDirection(types.DirectionOutgoing), WithLogger(quiet())).Run(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "out", summary.Results[0].OrderID)
}
