// Command boss runs the B.O.S.S. runtime: it loads configuration,
// selects a HAL backend, wires the orchestrator, and blocks until a
// shutdown signal arrives.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vfiduccia/boss/apps"
	"github.com/vfiduccia/boss/internal/bosserr"
	"github.com/vfiduccia/boss/internal/config"
	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/logging"
	"github.com/vfiduccia/boss/internal/orchestrator"
	"github.com/vfiduccia/boss/internal/secrets"
)

const (
	exitOK             = 0
	exitStartupFailure = 1
	exitRuntimeFailure = 2
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "boss: unrecoverable runtime error: %v\n", r)
			code = exitRuntimeFailure
		}
	}()

	configPath := envOrDefault("BOSS_CONFIG_PATH", "config.json")

	cfg, err := config.Load(configPath)
	if err != nil {
		var cfgErr *bosserr.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "boss: configuration error in %s: %v\n", cfgErr.Field, cfgErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "boss: configuration error: %v\n", err)
		}
		return exitStartupFailure
	}

	backend, debugForced := selectBackend()
	level := cfg.System.LogLevel
	if debugForced {
		level = "DEBUG"
	}
	if override := os.Getenv("BOSS_LOG_LEVEL"); override != "" {
		level = override
	}

	log, err := logging.New(level, cfg.System.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boss: logging init error: %v\n", err)
		return exitStartupFailure
	}

	if err := secrets.LoadIntoEnv(os.Getenv("BOSS_SECRETS_PATH")); err != nil {
		log.Error().Err(err).Msg("failed to load secrets file")
		return exitStartupFailure
	}

	opts := orchestrator.Options{
		Backend:     backend,
		EntryPoints: apps.EntryPoints(),
		Secret:      func(name string) (string, bool) { return os.LookupEnv(name) },
	}

	o, err := orchestrator.New(cfg, log, opts)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator construction failed")
		return exitStartupFailure
	}

	if err := o.Start(); err != nil {
		log.Error().Err(err).Msg("orchestrator start failed")
		return exitStartupFailure
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	o.InitiateShutdown("signal")
	o.Wait()

	return exitOK
}

// selectBackend implements spec §6's BOSS_TEST_MODE / BOSS_DEV_MODE
// overrides; a process without either forces set always targets the
// real GPIO backend.
func selectBackend() (kind halcontract.HardwareBackendKind, debugForced bool) {
	if os.Getenv("BOSS_TEST_MODE") == "1" {
		return halcontract.BackendMock, true
	}
	if os.Getenv("BOSS_DEV_MODE") == "1" {
		return halcontract.BackendEmulator, true
	}
	return halcontract.BackendGPIO, false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
