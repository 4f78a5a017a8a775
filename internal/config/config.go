// Package config loads and validates the top-level BOSS configuration
// file (spec §6): strict JSON, pin assignments, screen dimensions, and
// the handful of system-level knobs (apps directory, log level, event
// queue size, app timeout). Unlike mini-app manifests (§4.5, validated
// per-app in internal/registry), this file is fatal-on-error: a bad
// top-level config aborts startup with exit code 1 (spec §6).
//
// encoding/json is used deliberately rather than a schema-validation
// library — the teacher's own config loader (server/config) reaches for
// encoding/json via a toMap/diffMaps round trip for its override merge,
// and this file has no analogous need for partial overlays, defaults
// merging, or cross-file references that would justify pulling in a
// dedicated validation package from the rest of the pack.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vfiduccia/boss/internal/bosserr"
)

// HardwareConfig is the "hardware" section: pin assignments and screen
// dimensions. Both the button and the LED pin maps are keyed by color
// name.
type HardwareConfig struct {
	ButtonPins map[string]string `json:"button_pins"`
	LedPins    map[string]string `json:"led_pins"`

	MuxSelectPins [3]string `json:"mux_select_pins"`
	MuxCommonPin  string    `json:"mux_common_pin"`

	DisplayClockPin string `json:"display_clock_pin"`
	DisplayDataPin  string `json:"display_data_pin"`

	ScreenWidth  int  `json:"screen_width"`
	ScreenHeight int  `json:"screen_height"`
	EnableAudio  bool `json:"enable_audio"`

	ConsoleDevice string `json:"console_device"`
}

// SystemConfig is the "system" section.
type SystemConfig struct {
	AppsDirectory     string `json:"apps_directory"`
	AppMappingsFile   string `json:"app_mappings_file"`
	StartupApp        string `json:"startup_app"`
	LogLevel          string `json:"log_level"`
	LogFile           string `json:"log_file"`
	EventQueueSize    int    `json:"event_queue_size"`
	AppTimeoutSeconds int    `json:"app_timeout_seconds"`
	EmulatorPort      int    `json:"emulator_port"`
}

// Config is the fully validated, parsed top-level configuration.
type Config struct {
	Hardware HardwareConfig `json:"hardware"`
	System   SystemConfig   `json:"system"`
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

var requiredColors = []string{"red", "yellow", "green", "blue"}

// Load reads, strictly decodes, and validates the config file at path.
// Every returned error is a *bosserr.ConfigError, so cmd/boss (and any
// other caller) can branch on kind via errors.As instead of matching
// message text.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &bosserr.ConfigError{Field: "file", Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, &bosserr.ConfigError{Field: "body", Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	pins := make(map[string]string) // pin name -> first role that claimed it

	claim := func(role, pin string) error {
		if pin == "" {
			return &bosserr.ConfigError{Field: role, Err: fmt.Errorf("pin not assigned")}
		}
		if other, used := pins[pin]; used {
			return &bosserr.ConfigError{Field: role, Err: fmt.Errorf("pin %q already assigned to %s", pin, other)}
		}
		pins[pin] = role
		return nil
	}

	for _, color := range requiredColors {
		pin, ok := cfg.Hardware.ButtonPins[color]
		if !ok {
			return &bosserr.ConfigError{Field: "button_pins." + color, Err: fmt.Errorf("missing")}
		}
		if err := claim("button_pins."+color, pin); err != nil {
			return err
		}
	}
	for _, color := range requiredColors {
		pin, ok := cfg.Hardware.LedPins[color]
		if !ok {
			return &bosserr.ConfigError{Field: "led_pins." + color, Err: fmt.Errorf("missing")}
		}
		if err := claim("led_pins."+color, pin); err != nil {
			return err
		}
	}
	for i, pin := range cfg.Hardware.MuxSelectPins {
		if err := claim(fmt.Sprintf("mux_select_pins[%d]", i), pin); err != nil {
			return err
		}
	}
	if err := claim("mux_common_pin", cfg.Hardware.MuxCommonPin); err != nil {
		return err
	}
	if err := claim("display_clock_pin", cfg.Hardware.DisplayClockPin); err != nil {
		return err
	}
	if err := claim("display_data_pin", cfg.Hardware.DisplayDataPin); err != nil {
		return err
	}

	if cfg.Hardware.ScreenWidth <= 0 {
		return &bosserr.ConfigError{Field: "screen_width", Err: fmt.Errorf("must be positive, got %d", cfg.Hardware.ScreenWidth)}
	}
	if cfg.Hardware.ScreenHeight <= 0 {
		return &bosserr.ConfigError{Field: "screen_height", Err: fmt.Errorf("must be positive, got %d", cfg.Hardware.ScreenHeight)}
	}

	if cfg.System.AppsDirectory == "" {
		return &bosserr.ConfigError{Field: "apps_directory", Err: fmt.Errorf("must be set")}
	}
	if cfg.System.AppMappingsFile == "" {
		return &bosserr.ConfigError{Field: "app_mappings_file", Err: fmt.Errorf("must be set")}
	}
	if !validLogLevels[cfg.System.LogLevel] {
		return &bosserr.ConfigError{Field: "log_level", Err: fmt.Errorf("invalid %q", cfg.System.LogLevel)}
	}
	if cfg.System.EventQueueSize < 1 {
		return &bosserr.ConfigError{Field: "event_queue_size", Err: fmt.Errorf("must be >= 1, got %d", cfg.System.EventQueueSize)}
	}
	if cfg.System.AppTimeoutSeconds < 1 {
		return &bosserr.ConfigError{Field: "app_timeout_seconds", Err: fmt.Errorf("must be >= 1, got %d", cfg.System.AppTimeoutSeconds)}
	}

	return nil
}
