// Package halcontract defines the hardware abstraction contract shared by
// every HAL backend (GPIO, Emulator, Mock) and by the components above
// them. No backend-specific code lives here.
package halcontract

import "context"

// HardwareBackendKind selects which HAL backend the orchestrator
// constructs at startup. Immutable for the process lifetime.
type HardwareBackendKind string

const (
	BackendGPIO     HardwareBackendKind = "gpio"
	BackendEmulator HardwareBackendKind = "emulator"
	BackendMock     HardwareBackendKind = "mock"
)

// SwitchValue is the 8-bit value sampled from the switch multiplexer.
type SwitchValue uint8

// ButtonId enumerates the five physical buttons.
type ButtonId string

const (
	ButtonRed    ButtonId = "red"
	ButtonYellow ButtonId = "yellow"
	ButtonGreen  ButtonId = "green"
	ButtonBlue   ButtonId = "blue"
	ButtonGo     ButtonId = "go"
)

// LedId enumerates the four color LEDs, paired 1:1 with the color buttons.
type LedId string

const (
	LedRed    LedId = "red"
	LedYellow LedId = "yellow"
	LedGreen  LedId = "green"
	LedBlue   LedId = "blue"
)

// ButtonForLed returns the button sharing LED id's color.
func ButtonForLed(id LedId) ButtonId {
	return ButtonId(id)
}

// LedForButton returns the LED sharing button id's color, and false for
// buttons with no paired LED (only Go has none).
func LedForButton(id ButtonId) (LedId, bool) {
	switch id {
	case ButtonRed, ButtonYellow, ButtonGreen, ButtonBlue:
		return LedId(id), true
	default:
		return "", false
	}
}

// LedState is the last commanded state of one LED.
type LedState struct {
	On         bool
	Brightness float64 // [0,1]; meaningful only when On
}

// Align is the text alignment for draw_text.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Color is a simple RGB color used by screen/LED test-mode operations.
type Color struct {
	R, G, B uint8
}

// TextOptions carries the optional parameters of draw_text.
type TextOptions struct {
	FontSize   int
	Foreground Color
	Background Color
	Align      Align
}

// ButtonEdge is a raw button transition reported by a backend, before
// debouncing/gating (C3/C4) is applied above the HAL.
type ButtonEdge struct {
	Button  ButtonId
	Pressed bool // true = press, false = release
}

// ButtonHandler receives raw button edges from subscribe_buttons.
type ButtonHandler func(ButtonEdge)

// SwitchEdgeHandler receives raw (possibly bouncy) switch-line transitions
// from subscribe_switch_edge. Debouncing into committed values is C3's job.
type SwitchEdgeHandler func(SwitchValue)

// HAL is the single contract every backend implements. Implementations
// must be safe for concurrent use: the bus worker, the switch monitor,
// and mini-apps all call into it from distinct goroutines.
type HAL interface {
	// ReadSwitches performs an atomic 8-bit read of the switch value.
	ReadSwitches(ctx context.Context) (SwitchValue, error)

	// SetLed idempotently sets one LED's state, emitting
	// output.led.state_changed on a transition.
	SetLed(ctx context.Context, id LedId, state LedState) error

	// SetDisplay writes the 7-segment display. nil blanks it.
	SetDisplay(ctx context.Context, value *int) error

	// DrawText renders text on the main screen.
	DrawText(ctx context.Context, content string, opts TextOptions) error

	// ClearScreen clears the main screen to the given background color.
	ClearScreen(ctx context.Context, bg Color) error

	// SubscribeButtons registers a handler for raw button edges. Returns
	// an unsubscribe function.
	SubscribeButtons(handler ButtonHandler) (unsubscribe func())

	// SubscribeSwitchEdge registers a handler for raw switch-line
	// transitions (pre-debounce). Returns an unsubscribe function.
	SubscribeSwitchEdge(handler SwitchEdgeHandler) (unsubscribe func())

	// Close releases hardware handles. Called once at shutdown.
	Close() error
}
