// Package bosserr defines the typed error kinds from spec §7. Call sites
// that produce one of these kinds return or log it as a pointer to the
// struct, so callers can branch on kind via errors.As without string
// matching. Other errors in the core (sentinel errors, fmt.Errorf
// wrappers) are not of these kinds.
package bosserr

import "fmt"

// ConfigError wraps a malformed or invalid configuration problem.
// Fatal at startup; config is never hot-reloaded so it can never occur
// later in the process lifetime.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ManifestError wraps an invalid or deprecated mini-app manifest. Never
// fatal: the offending app is marked unavailable and the registry keeps
// running.
type ManifestError struct {
	AppDir string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s: %s", e.AppDir, e.Reason)
}

// HardwareError wraps a backend-level I/O failure. It is returned by the
// GPIO backend and logged by its callers; no system.error event is
// published for it. The Runner and Bus stay healthy.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("hardware: %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

// AppError wraps an uncaught panic or error surfaced by a running
// mini-app. Transformed into system.app.error + system.app.stopped
// (reason=error); the Runner stays healthy.
type AppError struct {
	AppName string
	Err     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("app %s: %v", e.AppName, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// TimeoutError records that a mini-app exceeded its timeout_seconds.
// Resolution is governed by the manifest's timeout_behavior.
type TimeoutError struct {
	AppName        string
	TimeoutSeconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("app %s exceeded timeout of %ds", e.AppName, e.TimeoutSeconds)
}

// BusOverflow records that the event queue was at capacity and an
// event of EventType was dropped.
type BusOverflow struct {
	EventType string
}

func (e *BusOverflow) Error() string {
	return fmt.Sprintf("bus overflow, dropped %s", e.EventType)
}
