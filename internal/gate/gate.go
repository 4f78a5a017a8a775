// Package gate implements the Button/LED Gate (C4): raw button edges
// from the HAL are republished as input.button.pressed/released only
// when the paired LED is lit. The Go button is ungated. This gate
// subscribes to the HAL directly (not the bus) since raw edges never
// touch the bus per spec §4.1 — only the gated, translated events do.
package gate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

// Gate tracks the last commanded LED states (mirrored from
// output.led.state_changed) and filters raw button edges accordingly.
type Gate struct {
	hal halcontract.HAL
	bus *bus.Bus
	log zerolog.Logger

	mu  sync.RWMutex
	lit map[halcontract.LedId]bool

	unsubButtons func()
	unsubLed     string
}

// New constructs a Gate and subscribes it to both the HAL's raw button
// edges and the bus's output.led.state_changed events, so its view of
// "is this LED lit" stays current across all three backends identically.
func New(hal halcontract.HAL, b *bus.Bus, log zerolog.Logger) *Gate {
	g := &Gate{
		hal: hal,
		bus: b,
		log: log.With().Str("component", "button_gate").Logger(),
		lit: make(map[halcontract.LedId]bool),
	}

	g.unsubLed = b.Subscribe(busevents.OutputLedStateChanged, g.onLedChanged, nil)
	g.unsubButtons = hal.SubscribeButtons(g.onButtonEdge)
	return g
}

func (g *Gate) onLedChanged(ev bus.Event) {
	color, _ := ev.Payload["color"].(string)
	isOn, _ := ev.Payload["is_on"].(bool)

	g.mu.Lock()
	g.lit[halcontract.LedId(color)] = isOn
	g.mu.Unlock()
}

func (g *Gate) onButtonEdge(edge halcontract.ButtonEdge) {
	if edge.Button == halcontract.ButtonGo {
		g.publish(edge)
		return
	}

	led, ok := halcontract.LedForButton(edge.Button)
	if !ok {
		g.publish(edge)
		return
	}

	g.mu.RLock()
	lit := g.lit[led]
	g.mu.RUnlock()

	if !lit {
		g.log.Info().
			Str("button", string(edge.Button)).
			Bool("pressed", edge.Pressed).
			Msg("button edge ignored, led not lit")
		return
	}

	g.publish(edge)
}

func (g *Gate) publish(edge halcontract.ButtonEdge) {
	eventType := busevents.InputButtonPressed
	if !edge.Pressed {
		eventType = busevents.InputButtonReleased
	}
	g.bus.Publish(eventType, map[string]any{
		"button": string(edge.Button),
	}, "button_gate")
}

// Close unsubscribes from both the HAL and the bus. Safe to call once.
func (g *Gate) Close(ctx context.Context) {
	if g.unsubButtons != nil {
		g.unsubButtons()
	}
	g.bus.Unsubscribe(g.unsubLed)
}
