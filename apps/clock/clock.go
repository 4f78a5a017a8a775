// Package clock is a mini-app that renders the wall-clock time,
// refreshed once per second, until the user presses Go again.
package clock

import (
	"context"
	"time"

	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/miniapp"
)

// Run draws the current time every second and idles cooperatively on
// the cancel signal between redraws.
func Run(ctx context.Context, api *miniapp.Api) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		now := time.Now().Format("15:04:05")
		if err := api.DisplayText(ctx, now, 48,
			halcontract.Color{R: 0, G: 255, B: 0},
			halcontract.Color{},
			halcontract.AlignCenter,
		); err != nil {
			api.LogError("clock: display_text failed: " + err.Error())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
