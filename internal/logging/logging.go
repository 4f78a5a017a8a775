// Package logging builds the process's root zerolog.Logger from
// configuration. Every component receives a child logger via
// log.With().Str("component", ...).Logger() from the orchestrator —
// there is no package-level global, per spec §9's ban on singletons.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. level is one of DEBUG/INFO/WARNING/ERROR/
// CRITICAL (case-insensitive, per §6); an empty logFile path logs to
// stderr. CRITICAL maps to zerolog's FatalLevel for log filtering
// purposes only — the process does not call os.Exit from here; that
// decision belongs to whoever observed the CRITICAL condition.
func New(level string, logFile string) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"

	lvl, err := parseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Logger{}, err
		}
		w = f
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO", "":
		return zerolog.InfoLevel, nil
	case "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "CRITICAL":
		return zerolog.FatalLevel, nil
	default:
		return zerolog.InfoLevel, &UnknownLevelError{Level: level}
	}
}

// UnknownLevelError reports a log level string that doesn't match any
// of the five levels spec §6 defines.
type UnknownLevelError struct {
	Level string
}

func (e *UnknownLevelError) Error() string {
	return "unknown log level " + e.Level
}
