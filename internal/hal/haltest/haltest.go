// Package haltest is a shared conformance suite exercised against any
// halcontract.HAL backend that also exposes the in-memory driver hooks
// (PressButton/ReleaseButton/SetSwitches) — currently Mock and Emulator.
// It asserts the parity rule from spec §4.1: both backends must publish
// identical event sequences for equivalent actions, differing only in
// timestamp and source tag.
package haltest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

// Driver is the subset of softhal.Core's extra surface needed to poke a
// backend from the outside during conformance testing.
type Driver interface {
	halcontract.HAL
	PressButton(id halcontract.ButtonId)
	ReleaseButton(id halcontract.ButtonId)
	SetSwitches(v halcontract.SwitchValue)
}

// Factory builds a fresh backend instance wired to b, tagged with the
// source string the backend is expected to use.
type Factory func(b *bus.Bus) (drv Driver, wantSource string)

// RunConformance runs the full suite against one backend factory. Call
// it once per backend from that backend's own _test.go file.
func RunConformance(t *testing.T, newBackend Factory) {
	t.Run("LedTransitionEmitsTaggedEvent", func(t *testing.T) {
		b := bus.New(testLogger())
		defer b.Stop(context.Background())
		drv, wantSource := newBackend(b)

		events := make(chan bus.Event, 8)
		b.Subscribe(busevents.OutputLedStateChanged, func(ev bus.Event) { events <- ev }, nil)

		ctx := context.Background()
		require.NoError(t, drv.SetLed(ctx, halcontract.LedGreen, halcontract.LedState{On: true, Brightness: 1}))

		select {
		case ev := <-events:
			require.Equal(t, wantSource, ev.Source)
			require.Equal(t, "green", ev.Payload["color"])
			require.Equal(t, true, ev.Payload["is_on"])
			require.WithinDuration(t, time.Now(), ev.Timestamp, time.Second)
		case <-time.After(time.Second):
			t.Fatal("expected output.led.state_changed")
		}
	})

	t.Run("ButtonEdgesReachSubscribedHandler", func(t *testing.T) {
		// C1 itself never publishes input.button.* — that is C4's job
		// once a press clears the LED-gate. Conformance only requires
		// that the subscribed handler fires with the right edge shape.
		b := bus.New(testLogger())
		defer b.Stop(context.Background())
		drv, _ := newBackend(b)

		edges := make(chan halcontract.ButtonEdge, 4)
		drv.SubscribeButtons(func(e halcontract.ButtonEdge) { edges <- e })

		drv.PressButton(halcontract.ButtonRed)
		select {
		case e := <-edges:
			require.Equal(t, halcontract.ButtonRed, e.Button)
			require.True(t, e.Pressed)
		case <-time.After(time.Second):
			t.Fatal("expected press edge")
		}

		drv.ReleaseButton(halcontract.ButtonRed)
		select {
		case e := <-edges:
			require.False(t, e.Pressed)
		case <-time.After(time.Second):
			t.Fatal("expected release edge")
		}
	})

	t.Run("DisplayUpdateEmitsValueOrNull", func(t *testing.T) {
		b := bus.New(testLogger())
		defer b.Stop(context.Background())
		drv, wantSource := newBackend(b)

		events := make(chan bus.Event, 8)
		b.Subscribe(busevents.OutputDisplayUpdated, func(ev bus.Event) { events <- ev }, nil)

		v := 7
		require.NoError(t, drv.SetDisplay(context.Background(), &v))
		select {
		case ev := <-events:
			require.Equal(t, wantSource, ev.Source)
			require.Equal(t, 7, ev.Payload["value"])
		case <-time.After(time.Second):
			t.Fatal("expected output.display.updated with value")
		}

		require.NoError(t, drv.SetDisplay(context.Background(), nil))
		select {
		case ev := <-events:
			require.Nil(t, ev.Payload["value"])
		case <-time.After(time.Second):
			t.Fatal("expected output.display.updated with nil")
		}
	})

	t.Run("SwitchReadReflectsSetSwitches", func(t *testing.T) {
		b := bus.New(testLogger())
		defer b.Stop(context.Background())
		drv, _ := newBackend(b)

		drv.SetSwitches(0b1010_1010)
		v, err := drv.ReadSwitches(context.Background())
		require.NoError(t, err)
		require.Equal(t, halcontract.SwitchValue(0b1010_1010), v)
	})
}
