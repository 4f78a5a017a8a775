// Package startup implements the admin mini-app responsible for the
// idle/ready screen: displayed at boot and relaunched after any other
// app's return-timeout (spec §9, Open Question resolved "yes").
package startup

import (
	"context"
	"time"

	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/miniapp"
)

const pollCadence = 200 * time.Millisecond

// Run draws the ready screen and idles until canceled. It never lights
// a LED or subscribes to button input — dialing a value and pressing Go
// is handled entirely by the system orchestrator, not by this app.
func Run(ctx context.Context, api *miniapp.Api) error {
	if err := api.DisplayText(ctx, "BOSS READY\nDial a value, press GO", 24,
		halcontract.Color{R: 255, G: 255, B: 255},
		halcontract.Color{},
		halcontract.AlignCenter,
	); err != nil {
		api.LogError("failed to draw ready screen: " + err.Error())
	}

	ticker := time.NewTicker(pollCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
