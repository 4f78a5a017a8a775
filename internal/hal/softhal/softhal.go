// Package softhal is the shared in-memory HAL core used by both the Mock
// and Emulator backends (C1): neither touches real hardware, both must
// emit byte-identical events (parity rule, spec §4.1) differing only in
// their source tag. Factoring the shared state machine here keeps the
// two backends from diverging into two copies of the same bug.
package softhal

import (
	"context"
	"sync"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

// Snapshot is the current state of every output surface, used by the
// Emulator's HTTP surface to build its initial_state message.
type Snapshot struct {
	Switches halcontract.SwitchValue
	Leds     map[halcontract.LedId]halcontract.LedState
	Display  *int
	Screen   string
}

// Core implements halcontract.HAL entirely in memory, publishing the
// spec's output.* events to bus on every state transition.
type Core struct {
	bus    *bus.Bus
	source string

	mu sync.Mutex

	switches halcontract.SwitchValue
	leds     map[halcontract.LedId]halcontract.LedState
	display  *int
	screen   string

	buttonHandlers []halcontract.ButtonHandler
	switchHandlers []halcontract.SwitchEdgeHandler

	closed bool
}

// New creates a Core tagging every published event with source. b may be
// nil (events are simply not published — useful for isolated unit tests).
func New(source string, b *bus.Bus) *Core {
	return &Core{
		bus:    b,
		source: source,
		leds: map[halcontract.LedId]halcontract.LedState{
			halcontract.LedRed:    {},
			halcontract.LedYellow: {},
			halcontract.LedGreen:  {},
			halcontract.LedBlue:   {},
		},
	}
}

func (c *Core) publish(eventType string, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventType, payload, c.source)
}

func (c *Core) ReadSwitches(ctx context.Context) (halcontract.SwitchValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switches, nil
}

func (c *Core) SetLed(ctx context.Context, id halcontract.LedId, state halcontract.LedState) error {
	c.mu.Lock()
	prev, existed := c.leds[id]
	c.leds[id] = state
	c.mu.Unlock()

	if !existed || prev != state {
		c.publish(busevents.OutputLedStateChanged, map[string]any{
			"color":      string(id),
			"is_on":      state.On,
			"brightness": state.Brightness,
		})
	}
	return nil
}

func (c *Core) SetDisplay(ctx context.Context, value *int) error {
	c.mu.Lock()
	c.display = value
	c.mu.Unlock()

	var v any
	if value != nil {
		v = *value
	}
	c.publish(busevents.OutputDisplayUpdated, map[string]any{"value": v})
	return nil
}

func (c *Core) DrawText(ctx context.Context, content string, opts halcontract.TextOptions) error {
	c.mu.Lock()
	c.screen = content
	c.mu.Unlock()

	c.publish(busevents.OutputScreenUpdated, map[string]any{
		"content_type": busevents.ScreenContentText,
		"content":      content,
		"options":      opts,
	})
	return nil
}

func (c *Core) ClearScreen(ctx context.Context, bg halcontract.Color) error {
	c.mu.Lock()
	c.screen = ""
	c.mu.Unlock()

	c.publish(busevents.OutputScreenUpdated, map[string]any{
		"content_type": busevents.ScreenContentClear,
		"content":      "",
		"options":      map[string]any{"background": bg},
	})
	return nil
}

func (c *Core) SubscribeButtons(handler halcontract.ButtonHandler) func() {
	c.mu.Lock()
	c.buttonHandlers = append(c.buttonHandlers, handler)
	idx := len(c.buttonHandlers) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.buttonHandlers) {
			c.buttonHandlers[idx] = nil
		}
	}
}

func (c *Core) SubscribeSwitchEdge(handler halcontract.SwitchEdgeHandler) func() {
	c.mu.Lock()
	c.switchHandlers = append(c.switchHandlers, handler)
	idx := len(c.switchHandlers) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.switchHandlers) {
			c.switchHandlers[idx] = nil
		}
	}
}

func (c *Core) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// PressButton simulates a press edge, fanning out to SubscribeButtons
// handlers. Debouncing/gating is applied above C1 (C3/C4).
func (c *Core) PressButton(id halcontract.ButtonId) {
	c.fireButton(halcontract.ButtonEdge{Button: id, Pressed: true})
}

// ReleaseButton simulates a release edge.
func (c *Core) ReleaseButton(id halcontract.ButtonId) {
	c.fireButton(halcontract.ButtonEdge{Button: id, Pressed: false})
}

func (c *Core) fireButton(edge halcontract.ButtonEdge) {
	c.mu.Lock()
	handlers := make([]halcontract.ButtonHandler, len(c.buttonHandlers))
	copy(handlers, c.buttonHandlers)
	c.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(edge)
		}
	}
}

// SetSwitches simulates the multiplexer presenting a new raw value.
func (c *Core) SetSwitches(v halcontract.SwitchValue) {
	c.mu.Lock()
	c.switches = v
	handlers := make([]halcontract.SwitchEdgeHandler, len(c.switchHandlers))
	copy(handlers, c.switchHandlers)
	c.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(v)
		}
	}
}

// LedState returns the last commanded state of id.
func (c *Core) LedState(id halcontract.LedId) halcontract.LedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leds[id]
}

// DisplayValue returns the last value written to the 7-seg.
func (c *Core) DisplayValue() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// ScreenContent returns the last text drawn to the screen.
func (c *Core) ScreenContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Closed reports whether Close has been called.
func (c *Core) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// TakeSnapshot returns a deep-enough copy of current output state for the
// emulator surface's initial_state message.
func (c *Core) TakeSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	leds := make(map[halcontract.LedId]halcontract.LedState, len(c.leds))
	for k, v := range c.leds {
		leds[k] = v
	}
	return Snapshot{
		Switches: c.switches,
		Leds:     leds,
		Display:  c.display,
		Screen:   c.screen,
	}
}
