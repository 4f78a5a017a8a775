package mock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

func TestSetLedEmitsOnTransitionOnly(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Stop(context.Background())
	h := New(b)

	events := make(chan bus.Event, 8)
	b.Subscribe(busevents.OutputLedStateChanged, func(ev bus.Event) { events <- ev }, nil)

	ctx := context.Background()
	require.NoError(t, h.SetLed(ctx, halcontract.LedRed, halcontract.LedState{On: true, Brightness: 1}))
	require.NoError(t, h.SetLed(ctx, halcontract.LedRed, halcontract.LedState{On: true, Brightness: 1}))

	select {
	case ev := <-events:
		require.Equal(t, "red", ev.Payload["color"])
		require.Equal(t, true, ev.Payload["is_on"])
	case <-time.After(time.Second):
		t.Fatal("expected one state-changed event")
	}

	select {
	case ev := <-events:
		t.Fatalf("idempotent re-set should not re-emit, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestButtonEdgesFanOutToAllSubscribers(t *testing.T) {
	h := New(nil)
	var a, c int
	h.SubscribeButtons(func(halcontract.ButtonEdge) { a++ })
	unsub := h.SubscribeButtons(func(halcontract.ButtonEdge) { c++ })

	h.PressButton(halcontract.ButtonGo)
	require.Equal(t, 1, a)
	require.Equal(t, 1, c)

	unsub()
	h.PressButton(halcontract.ButtonGo)
	require.Equal(t, 2, a)
	require.Equal(t, 1, c)
}

func TestSetDisplayNilBlanks(t *testing.T) {
	h := New(nil)
	v := 42
	require.NoError(t, h.SetDisplay(context.Background(), &v))
	require.NotNil(t, h.DisplayValue())
	require.Equal(t, 42, *h.DisplayValue())

	require.NoError(t, h.SetDisplay(context.Background(), nil))
	require.Nil(t, h.DisplayValue())
}
