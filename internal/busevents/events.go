// Package busevents centralizes the canonical dotted event-type names and
// payload keys from spec §6, so every publisher and subscriber spells
// them identically. Grounded on the pack's Source/Kind constant pattern
// (nugget-thane's events package) adapted to dotted lowercase names.
package busevents

const (
	InputSwitchChanged  = "input.switch.changed"
	InputButtonPressed  = "input.button.pressed"
	InputButtonReleased = "input.button.released"

	OutputLedStateChanged = "output.led.state_changed"
	OutputDisplayUpdated  = "output.display.updated"
	OutputScreenUpdated   = "output.screen.updated"

	SystemAppStarted        = "system.app.started"
	SystemAppStopped        = "system.app.stopped"
	SystemAppError          = "system.app.error"
	SystemShutdownInitiated = "system.shutdown.initiated"
	SystemError             = "system.error"
)

// Stop reasons for system.app.stopped.reason.
const (
	ReasonNormal   = "normal"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
	ReasonUserStop = "user_stop"
	ReasonShutdown = "shutdown"
)

// ScreenContentType values for output.screen.updated.content_type.
const (
	ScreenContentText  = "text"
	ScreenContentImage = "image"
	ScreenContentClear = "clear"
)
