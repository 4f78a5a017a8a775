// Package echo is a demonstration mini-app: it lights all four color
// LEDs so every colored button becomes valid input (spec §4.7's parity
// rule — a LED is on iff its button is currently valid input), then
// echoes each press to the screen via the event bus.
package echo

import (
	"context"
	"fmt"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/miniapp"
)

// Run lights every LED, subscribes to button presses, and redraws the
// last-pressed button on screen until canceled.
func Run(ctx context.Context, api *miniapp.Api) error {
	for _, color := range []halcontract.LedId{halcontract.LedRed, halcontract.LedYellow, halcontract.LedGreen, halcontract.LedBlue} {
		if err := api.SetLed(ctx, color, true, 1.0); err != nil {
			api.LogError("echo: set_led failed: " + err.Error())
		}
	}
	defer func() {
		for _, color := range []halcontract.LedId{halcontract.LedRed, halcontract.LedYellow, halcontract.LedGreen, halcontract.LedBlue} {
			_ = api.SetLed(context.Background(), color, false, 0)
		}
	}()

	if err := api.ClearScreen(ctx, halcontract.Color{}); err != nil {
		api.LogError("echo: clear_screen failed: " + err.Error())
	}

	pressed := make(chan string, 8)
	subID := api.Subscribe(busevents.InputButtonPressed, func(ev bus.Event) {
		if b, ok := ev.Payload["button"].(string); ok {
			select {
			case pressed <- b:
			default:
			}
		}
	}, nil)
	defer api.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case color := <-pressed:
			text := fmt.Sprintf("You pressed: %s", color)
			if err := api.DisplayText(ctx, text, 32, halcontract.Color{R: 255}, halcontract.Color{}, halcontract.AlignCenter); err != nil {
				api.LogError("echo: display_text failed: " + err.Error())
			}
		}
	}
}
