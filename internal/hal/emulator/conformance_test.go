package emulator

import (
	"testing"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/haltest"
)

func TestEmulatorConformsToParityRule(t *testing.T) {
	haltest.RunConformance(t, func(b *bus.Bus) (haltest.Driver, string) {
		return New(b), "hal:emulator"
	})
}
