// Package gpio implements the real-hardware HAL backend (C1): switches
// read through a 3-to-8 multiplexer, four button/LED pin pairs, a
// two-wire bit-banged 7-segment shift register, and a text-oriented
// console screen. Built on periph.io/x/conn and periph.io/x/host, the
// canonical Go GPIO stack for Linux single-board computers — already
// present in the teacher's dependency surface (server/config's use of
// periph.io/x/conn/v3/physic for SPI frequency).
package gpio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/vfiduccia/boss/internal/bosserr"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

const source = "hal:gpio"

// bounceWindow is the coalescing window recommended by spec §4.1: raw
// transitions shorter than this are dropped at the source.
const bounceWindow = 20 * time.Millisecond

// PinConfig names the physical pins wired to the device, per the
// hardware wiring table documented alongside the device.
type PinConfig struct {
	ButtonPins map[halcontract.ButtonId]string
	LedPins    map[halcontract.LedId]string

	MuxSelect [3]string // S0, S1, S2 — low-to-high bit order
	MuxCommon string    // shared input line sampled per select combination

	DisplayClock string // shift-register clock pin
	DisplayData  string // shift-register data pin

	// ConsoleDevice is the text console the screen draws to (e.g.
	// "/dev/tty1"). Screen support degrades to a no-op (logged once)
	// if the device can't be opened.
	ConsoleDevice string
}

// HAL is the GPIO-backed hardware abstraction.
type HAL struct {
	bus zerologPublisher
	log zerolog.Logger
	cfg PinConfig

	mu        sync.Mutex
	buttons   map[halcontract.ButtonId]gpio.PinIO
	leds      map[halcontract.LedId]gpio.PinIO
	muxSelect [3]gpio.PinIO
	muxCommon gpio.PinIO
	clock     gpio.PinIO
	data      gpio.PinIO

	ledState map[halcontract.LedId]halcontract.LedState
	display  *int

	buttonHandlers []halcontract.ButtonHandler
	switchHandlers []halcontract.SwitchEdgeHandler

	console *os.File

	stop chan struct{}
	wg   sync.WaitGroup
}

type zerologPublisher interface {
	Publish(eventType string, payload map[string]any, source string)
}

// New initializes periph.io's host drivers and opens every configured
// pin. Returns a HardwareError-wrapped error if any named pin cannot be
// resolved (spec §7: HardwareError is non-fatal to the Runner/Bus, but
// construction itself may fail and the orchestrator aborts startup —
// equivalent in effect to a ConfigError about bad pin names).
func New(log zerolog.Logger, b zerologPublisher, cfg PinConfig) (*HAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, &bosserr.HardwareError{Op: "periph host init", Err: err}
	}

	h := &HAL{
		bus:      b,
		log:      log.With().Str("component", "hal_gpio").Logger(),
		cfg:      cfg,
		buttons:  make(map[halcontract.ButtonId]gpio.PinIO),
		leds:     make(map[halcontract.LedId]gpio.PinIO),
		ledState: make(map[halcontract.LedId]halcontract.LedState),
		stop:     make(chan struct{}),
	}

	for id, name := range cfg.ButtonPins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("resolve button pin %q for %s", name, id), Err: fmt.Errorf("pin not found")}
		}
		if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("configure button pin %s", id), Err: err}
		}
		h.buttons[id] = pin
	}
	for id, name := range cfg.LedPins {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("resolve led pin %q for %s", name, id), Err: fmt.Errorf("pin not found")}
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("configure led pin %s", id), Err: err}
		}
		h.leds[id] = pin
		h.ledState[id] = halcontract.LedState{}
	}
	for i, name := range cfg.MuxSelect {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("resolve mux select pin %q", name), Err: fmt.Errorf("pin not found")}
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, &bosserr.HardwareError{Op: fmt.Sprintf("configure mux select pin %d", i), Err: err}
		}
		h.muxSelect[i] = pin
	}
	common := gpioreg.ByName(cfg.MuxCommon)
	if common == nil {
		return nil, &bosserr.HardwareError{Op: fmt.Sprintf("resolve mux common pin %q", cfg.MuxCommon), Err: fmt.Errorf("pin not found")}
	}
	if err := common.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, &bosserr.HardwareError{Op: "configure mux common pin", Err: err}
	}
	h.muxCommon = common

	clock := gpioreg.ByName(cfg.DisplayClock)
	data := gpioreg.ByName(cfg.DisplayData)
	if clock == nil || data == nil {
		return nil, &bosserr.HardwareError{Op: fmt.Sprintf("resolve display pins %q/%q", cfg.DisplayClock, cfg.DisplayData), Err: fmt.Errorf("pin not found")}
	}
	if err := clock.Out(gpio.Low); err != nil {
		return nil, &bosserr.HardwareError{Op: "configure display clock", Err: err}
	}
	if err := data.Out(gpio.Low); err != nil {
		return nil, &bosserr.HardwareError{Op: "configure display data", Err: err}
	}
	h.clock, h.data = clock, data

	if cfg.ConsoleDevice != "" {
		if f, err := os.OpenFile(cfg.ConsoleDevice, os.O_WRONLY, 0); err != nil {
			h.log.Warn().Err(err).Str("device", cfg.ConsoleDevice).Msg("console device unavailable, screen writes will be no-ops")
		} else {
			h.console = f
		}
	}

	h.wg.Add(1)
	go h.pollButtons()

	return h, nil
}

func (h *HAL) publish(eventType string, payload map[string]any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(eventType, payload, source)
}

// pollButtons watches every configured button pin for edges and
// coalesces bounces shorter than bounceWindow at the source, per §4.1.
func (h *HAL) pollButtons() {
	defer h.wg.Done()

	type lastEdge struct {
		at      time.Time
		pressed bool
	}
	last := make(map[halcontract.ButtonId]lastEdge)

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	prevLevel := make(map[halcontract.ButtonId]gpio.Level)
	for id, pin := range h.buttons {
		prevLevel[id] = pin.Read()
	}

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			now := time.Now()
			for id, pin := range h.buttons {
				level := pin.Read()
				if level == prevLevel[id] {
					continue
				}
				prevLevel[id] = level
				pressed := level == gpio.Low // active-low with pull-up

				if le, ok := last[id]; ok && now.Sub(le.at) < bounceWindow {
					last[id] = lastEdge{at: now, pressed: pressed}
					continue
				}
				last[id] = lastEdge{at: now, pressed: pressed}
				h.fireButton(halcontract.ButtonEdge{Button: id, Pressed: pressed})
			}
		}
	}
}

func (h *HAL) fireButton(edge halcontract.ButtonEdge) {
	h.mu.Lock()
	handlers := make([]halcontract.ButtonHandler, len(h.buttonHandlers))
	copy(handlers, h.buttonHandlers)
	h.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(edge)
		}
	}
}

func (h *HAL) ReadSwitches(ctx context.Context) (halcontract.SwitchValue, error) {
	// The select lines are shared, so concurrent reads are serialized.
	h.mu.Lock()
	defer h.mu.Unlock()
	var v uint8
	for bit := 0; bit < 8; bit++ {
		for i := 0; i < 3; i++ {
			level := gpio.Low
			if bit&(1<<i) != 0 {
				level = gpio.High
			}
			if err := h.muxSelect[i].Out(level); err != nil {
				return 0, &bosserr.HardwareError{Op: fmt.Sprintf("set mux select %d", i), Err: err}
			}
		}
		// Settling time for the multiplexer to present the selected line.
		time.Sleep(2 * time.Microsecond)
		if h.muxCommon.Read() == gpio.High {
			v |= 1 << uint(bit)
		}
	}
	return halcontract.SwitchValue(v), nil
}

func (h *HAL) SetLed(ctx context.Context, id halcontract.LedId, state halcontract.LedState) error {
	h.mu.Lock()
	pin, ok := h.leds[id]
	prev := h.ledState[id]
	h.mu.Unlock()
	if !ok {
		return &bosserr.HardwareError{Op: fmt.Sprintf("set led %s", id), Err: fmt.Errorf("no pin configured")}
	}

	level := gpio.Low
	if state.On {
		level = gpio.High
	}
	if err := pin.Out(level); err != nil {
		return &bosserr.HardwareError{Op: fmt.Sprintf("write led %s", id), Err: err}
	}

	h.mu.Lock()
	h.ledState[id] = state
	h.mu.Unlock()

	if prev != state {
		h.publish(busevents.OutputLedStateChanged, map[string]any{
			"color":      string(id),
			"is_on":      state.On,
			"brightness": state.Brightness,
		})
	}
	return nil
}

// SetDisplay bit-bangs value out to the shift register driving the
// 7-segment display, MSB first. nil blanks the display (all segments
// off).
func (h *HAL) SetDisplay(ctx context.Context, value *int) error {
	var b byte
	if value != nil {
		b = byte(*value)
	}
	for i := 7; i >= 0; i-- {
		level := gpio.Low
		if b&(1<<uint(i)) != 0 {
			level = gpio.High
		}
		if err := h.data.Out(level); err != nil {
			return &bosserr.HardwareError{Op: "display data", Err: err}
		}
		if err := h.clock.Out(gpio.High); err != nil {
			return &bosserr.HardwareError{Op: "display clock high", Err: err}
		}
		if err := h.clock.Out(gpio.Low); err != nil {
			return &bosserr.HardwareError{Op: "display clock low", Err: err}
		}
	}

	h.mu.Lock()
	h.display = value
	h.mu.Unlock()

	var v any
	if value != nil {
		v = *value
	}
	h.publish(busevents.OutputDisplayUpdated, map[string]any{"value": v})
	return nil
}

func (h *HAL) DrawText(ctx context.Context, content string, opts halcontract.TextOptions) error {
	if h.console != nil {
		// Clear screen + home cursor + print, via plain ANSI escapes — the
		// single text-oriented screen backend called for in spec §9.
		if _, err := fmt.Fprintf(h.console, "\x1b[2J\x1b[H%s", content); err != nil {
			h.log.Warn().Err(err).Msg("screen write failed, console may be disconnected")
		}
	}
	h.publish(busevents.OutputScreenUpdated, map[string]any{
		"content_type": busevents.ScreenContentText,
		"content":      content,
		"options":      opts,
	})
	return nil
}

func (h *HAL) ClearScreen(ctx context.Context, bg halcontract.Color) error {
	if h.console != nil {
		if _, err := fmt.Fprint(h.console, "\x1b[2J\x1b[H"); err != nil {
			h.log.Warn().Err(err).Msg("screen clear failed, console may be disconnected")
		}
	}
	h.publish(busevents.OutputScreenUpdated, map[string]any{
		"content_type": busevents.ScreenContentClear,
		"content":      "",
		"options":      map[string]any{"background": bg},
	})
	return nil
}

func (h *HAL) SubscribeButtons(handler halcontract.ButtonHandler) func() {
	h.mu.Lock()
	h.buttonHandlers = append(h.buttonHandlers, handler)
	idx := len(h.buttonHandlers) - 1
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.buttonHandlers) {
			h.buttonHandlers[idx] = nil
		}
	}
}

// SubscribeSwitchEdge is satisfied by polling ReadSwitches from C3; the
// GPIO backend has no interrupt line on the multiplexer's common input
// (it changes meaning every mux cycle), so there is nothing to subscribe
// to at this layer. The handler is retained for interface compliance and
// is never invoked; C3 must use ReadSwitches directly on this backend.
func (h *HAL) SubscribeSwitchEdge(handler halcontract.SwitchEdgeHandler) func() {
	h.mu.Lock()
	h.switchHandlers = append(h.switchHandlers, handler)
	idx := len(h.switchHandlers) - 1
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.switchHandlers) {
			h.switchHandlers[idx] = nil
		}
	}
}

func (h *HAL) Close() error {
	close(h.stop)
	h.wg.Wait()
	if h.console != nil {
		return h.console.Close()
	}
	return nil
}
