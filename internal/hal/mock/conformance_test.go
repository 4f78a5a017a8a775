package mock

import (
	"testing"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/haltest"
)

func TestMockConformsToParityRule(t *testing.T) {
	haltest.RunConformance(t, func(b *bus.Bus) (haltest.Driver, string) {
		return New(b), "hal:mock"
	})
}
