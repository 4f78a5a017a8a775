package switchmon

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/hal/mock"
	"github.com/vfiduccia/boss/internal/halcontract"
)

func TestStableTransitionPublishesExactlyOneEvent(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Stop(context.Background())
	hal := mock.New(b)

	events := make(chan bus.Event, 16)
	b.Subscribe(busevents.InputSwitchChanged, func(ev bus.Event) { events <- ev }, nil)

	m := New(hal, b, zerolog.Nop())
	m.sampleInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	hal.SetSwitches(42)

	var ev bus.Event
	require.Eventually(t, func() bool {
		select {
		case ev = <-events:
			return true
		default:
			return false
		}
	}, time.Second, 2*time.Millisecond)

	require.Equal(t, 0, ev.Payload["old_value"])
	require.Equal(t, 42, ev.Payload["new_value"])
	require.NotNil(t, hal.DisplayValue())
	require.Equal(t, 42, *hal.DisplayValue())

	select {
	case extra := <-events:
		t.Fatalf("expected exactly one event, got extra %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisplayUpdatedBeforeEventDelivered(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Stop(context.Background())
	hal := mock.New(b)

	delivered := make(chan int, 1)
	b.Subscribe(busevents.InputSwitchChanged, func(ev bus.Event) {
		v := hal.DisplayValue()
		if v != nil {
			delivered <- *v
		} else {
			delivered <- -1
		}
	}, nil)

	m := New(hal, b, zerolog.Nop())
	m.sampleInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	hal.SetSwitches(7)

	select {
	case v := <-delivered:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestStopReturnsWithinOneSamplePeriod(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Stop(context.Background())
	hal := mock.New(b)

	m := New(hal, b, zerolog.Nop())
	m.sampleInterval = 2 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	defer cancel()

	time.Sleep(10 * time.Millisecond)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stopCancel()
	m.Stop(stopCtx)
	require.NoError(t, stopCtx.Err())
}

func TestNoConsecutiveDuplicateValues(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Stop(context.Background())
	hal := mock.New(b)

	var seen []halcontract.SwitchValue
	b.Subscribe(busevents.InputSwitchChanged, func(ev bus.Event) {
		seen = append(seen, halcontract.SwitchValue(ev.Payload["new_value"].(int)))
	}, nil)

	m := New(hal, b, zerolog.Nop())
	m.sampleInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	hal.SetSwitches(5)
	time.Sleep(20 * time.Millisecond)
	hal.SetSwitches(5)
	time.Sleep(20 * time.Millisecond)
	hal.SetSwitches(9)
	time.Sleep(20 * time.Millisecond)

	require.Eventually(t, func() bool { return len(seen) >= 2 }, time.Second, 5*time.Millisecond)
	for i := 1; i < len(seen); i++ {
		require.NotEqual(t, seen[i-1], seen[i])
	}
}
