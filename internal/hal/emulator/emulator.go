// Package emulator implements the Emulator HAL backend (C1): no physical
// I/O, driven entirely by the HTTP/WebSocket debug surface (C9). Method
// calls enqueue bus events exactly like the Mock backend; the emulator
// surface additionally reads Snapshot() to build its initial_state
// message and calls PressButton/ReleaseButton/SetSwitches to simulate
// hardware edges from REST requests.
package emulator

import (
	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/softhal"
)

// HAL is the browser-driven, no-physical-I/O backend.
type HAL struct {
	*softhal.Core
}

// New creates an Emulator HAL with all LEDs off and the display blank.
func New(b *bus.Bus) *HAL {
	return &HAL{Core: softhal.New("hal:emulator", b)}
}

// Snapshot returns the current output state for the emulator surface's
// initial_state WebSocket message.
func (h *HAL) Snapshot() softhal.Snapshot {
	return h.TakeSnapshot()
}
