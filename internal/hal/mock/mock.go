// Package mock implements the in-memory HAL backend (C1) used by tests
// and by any component exercised without real or emulated hardware.
// It is a thin, source-tagged wrapper over softhal.Core — see that
// package for the shared state machine — so it is provably parity-rule
// identical to the Emulator backend except for the source tag.
package mock

import (
	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/softhal"
)

// HAL is the in-memory, programmatically-driven HAL backend.
type HAL struct {
	*softhal.Core
}

// New creates a Mock HAL with all LEDs off and the display blank. b may
// be nil for HAL-only unit tests that don't care about emitted events.
func New(b *bus.Bus) *HAL {
	return &HAL{Core: softhal.New("hal:mock", b)}
}
