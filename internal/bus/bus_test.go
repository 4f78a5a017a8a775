package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(zerolog.Nop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.Stop(ctx)
	})
	return b
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newTestBus(t)
	got := make(chan Event, 1)
	b.Subscribe("input.button.pressed", func(ev Event) { got <- ev }, nil)

	b.Publish("input.button.pressed", map[string]any{"button": "go"}, "test")

	select {
	case ev := <-got:
		require.Equal(t, "input.button.pressed", ev.Type)
		require.Equal(t, "go", ev.Payload["button"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFilterOnlyMatchesSubsetEquality(t *testing.T) {
	b := newTestBus(t)
	got := make(chan Event, 4)
	b.Subscribe("input.button.pressed", func(ev Event) { got <- ev }, Filter{"button": "go"})

	b.Publish("input.button.pressed", map[string]any{"button": "red"}, "test")
	b.Publish("input.button.pressed", map[string]any{"button": "go"}, "test")

	select {
	case ev := <-got:
		require.Equal(t, "go", ev.Payload["button"])
	case <-time.After(time.Second):
		t.Fatal("matching event not delivered")
	}

	select {
	case ev := <-got:
		t.Fatalf("unexpected second delivery: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotBlockOthersOrFutureEvents(t *testing.T) {
	b := newTestBus(t)
	var secondCalls int32
	var sysErrs int32

	b.Subscribe("x", func(Event) { panic("boom") }, nil)
	b.Subscribe("x", func(Event) { atomic.AddInt32(&secondCalls, 1) }, nil)
	b.Subscribe("system.error", func(Event) { atomic.AddInt32(&sysErrs, 1) }, nil)

	b.Publish("x", nil, "test")
	b.Publish("x", nil, "test")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&secondCalls) == 2
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sysErrs) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestUnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	var calls int32
	id := b.Subscribe("x", func(Event) { atomic.AddInt32(&calls, 1) }, nil)

	b.Publish("x", nil, "test")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)

	b.Unsubscribe(id)
	b.Unsubscribe(id) // idempotent

	b.Publish("x", nil, "test")
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestOverflowDropsNewestAndEmitsSystemError(t *testing.T) {
	b := newTestBus(t, WithQueueSize(1))

	// Hold the worker busy on a slow first handler so the queue backs up.
	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []string
	b.Subscribe("slow", func(ev Event) {
		<-release
		mu.Lock()
		delivered = append(delivered, "slow")
		mu.Unlock()
	}, nil)

	sysErr := make(chan Event, 8)
	b.Subscribe("system.error", func(ev Event) { sysErr <- ev }, nil)

	b.Publish("slow", nil, "test") // occupies the worker
	time.Sleep(20 * time.Millisecond)
	b.Publish("slow", nil, "test") // fills the 1-capacity queue
	b.Publish("slow", nil, "test") // overflow: dropped + system.error

	close(release)

	select {
	case ev := <-sysErr:
		require.Equal(t, "bus_overflow", ev.Payload["code"])
	case <-time.After(time.Second):
		t.Fatal("expected a system.error for the overflow")
	}
}

func TestFIFOOrderWithinSubscriptionAndEventType(t *testing.T) {
	b := newTestBus(t)
	var mu sync.Mutex
	var order []int

	b.Subscribe("x", func(ev Event) {
		mu.Lock()
		order = append(order, ev.Payload["n"].(int))
		mu.Unlock()
	}, nil)

	for i := 0; i < 20; i++ {
		b.Publish("x", map[string]any{"n": i}, "test")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 20
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		require.Equal(t, i, n)
	}
}

func TestPublishAfterStopIsNoop(t *testing.T) {
	b := New(zerolog.Nop())
	got := make(chan Event, 1)
	b.Subscribe("x", func(ev Event) { got <- ev }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Stop(ctx)

	b.Publish("x", nil, "test")

	select {
	case <-got:
		t.Fatal("publish after stop should be a no-op")
	case <-time.After(100 * time.Millisecond):
	}
}
