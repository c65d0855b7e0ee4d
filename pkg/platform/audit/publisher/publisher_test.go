package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "idlookup/pkg/platform/audit"
	"idlookup/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{CallerID: "caller-1", Action: audit.ActionQueryCompleted})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "caller-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionQueryCompleted, events[0].Action)
	assert.Equal(t, audit.SeverityInfo, events[0].Severity)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{CallerID: "caller-1", Action: audit.ActionQueryFailed})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), "caller-1")
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{CallerID: "caller-1", Action: audit.ActionQueryCompleted}))
	}
	pub.Close()

	events, err := store.ListByCaller(context.Background(), "caller-1")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			err := pub.Emit(context.Background(), audit.Event{CallerID: "caller-1", Action: audit.ActionQueryCompleted})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		})
	}
	wg.Wait()
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{CallerID: "caller-1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_SetsTimestampAndSeverity(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{CallerID: "c", Action: audit.ActionQueryRefundFailed}))

	events, err := pub.List(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, audit.SeverityCritical, events[0].Severity)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{CallerID: "c", Timestamp: custom}))

	events, err := pub.List(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, custom, events[0].Timestamp)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{CallerID: "c"})
	assert.ErrorIs(t, err, context.Canceled)
}

type appendOnly struct{}

func (appendOnly) Append(context.Context, audit.Event) error { return nil }

func TestPublisher_ListRequiresStore(t *testing.T) {
	pub := NewPublisher(appendOnly{})
	defer pub.Close()

	_, err := pub.List(context.Background(), "c")
	assert.ErrorIs(t, err, ErrListUnsupported)
}

func TestPublisher_DifferentCallers(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{CallerID: "a", Action: audit.ActionQueryCompleted}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{CallerID: "b", Action: audit.ActionQueryFailed}))

	a, err := pub.List(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, audit.ActionQueryCompleted, a[0].Action)

	b, err := pub.List(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, audit.ActionQueryFailed, b[0].Action)
}
