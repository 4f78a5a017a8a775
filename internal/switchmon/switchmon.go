// Package switchmon implements the Switch Monitor (C3): it samples the
// multiplexed 8-bit switch value on a short cadence, debounces it, and
// publishes input.switch.changed on distinct committed transitions,
// mirroring the new value to the 7-segment display before the event is
// delivered.
package switchmon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
)

const (
	defaultSampleInterval = 20 * time.Millisecond
	stableSamplesRequired = 2
)

// Monitor runs the sample/debounce/commit loop in its own goroutine.
type Monitor struct {
	hal halcontract.HAL
	bus *bus.Bus
	log zerolog.Logger

	sampleInterval time.Duration

	stop chan struct{}
	done chan struct{}
}

// New constructs a Monitor. Call Run to start sampling.
func New(hal halcontract.HAL, b *bus.Bus, log zerolog.Logger) *Monitor {
	return &Monitor{
		hal:            hal,
		bus:            b,
		log:            log.With().Str("component", "switch_monitor").Logger(),
		sampleInterval: defaultSampleInterval,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Run samples read_switches() every sampleInterval until ctx is
// canceled, committing a new value only after it has been stable for
// stableSamplesRequired consecutive samples. Run blocks; call it in its
// own goroutine.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()

	// committed starts at 0, so a non-zero value present at startup is
	// published (and mirrored to the display) once it has been stable.
	var (
		committed   halcontract.SwitchValue
		candidate   halcontract.SwitchValue
		stableCount int
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
		}

		v, err := m.hal.ReadSwitches(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("read_switches failed, skipping sample")
			continue
		}

		if v == candidate {
			if stableCount < stableSamplesRequired {
				stableCount++
			}
		} else {
			candidate = v
			stableCount = 1
		}

		if stableCount >= stableSamplesRequired && candidate != committed {
			old := committed
			committed = candidate

			nv := int(candidate)
			if err := m.hal.SetDisplay(ctx, &nv); err != nil {
				m.log.Warn().Err(err).Msg("set_display failed during commit")
			}

			m.bus.Publish(busevents.InputSwitchChanged, map[string]any{
				"old_value": int(old),
				"new_value": int(candidate),
			}, "switch_monitor")
		}
	}
}

// Stop signals Run to exit and blocks until it has, bounded by the
// caller's context — spec §4.3 requires stopping within one sample
// period.
func (m *Monitor) Stop(ctx context.Context) {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.stop)
	select {
	case <-m.done:
	case <-ctx.Done():
	}
}
