// Package orchestrator implements the System Orchestrator (C8): the
// composition root that builds C1-C7, wires the go-button to app
// launch, and runs startup/teardown in the order spec §4.8 prescribes.
// No component here reaches for a package-level singleton — everything
// is constructed here and handed down, per spec §9's "Global mutable
// state: none."
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/config"
	"github.com/vfiduccia/boss/internal/emulatorsurface"
	"github.com/vfiduccia/boss/internal/gate"
	"github.com/vfiduccia/boss/internal/hal/emulator"
	"github.com/vfiduccia/boss/internal/hal/gpio"
	"github.com/vfiduccia/boss/internal/hal/mock"
	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/miniapp"
	"github.com/vfiduccia/boss/internal/registry"
	"github.com/vfiduccia/boss/internal/runner"
	"github.com/vfiduccia/boss/internal/switchmon"
)

// Orchestrator owns every long-lived component and the process's single
// shutdown path.
type Orchestrator struct {
	cfg *config.Config
	log zerolog.Logger

	hal      halcontract.HAL
	bus      *bus.Bus
	monitor  *switchmon.Monitor
	gate     *gate.Gate
	registry *registry.Registry
	runner   *runner.Runner
	emulator *emulatorsurface.Server

	goSubID     string
	shutdownSub string

	monitorCtx    context.Context
	monitorCancel context.CancelFunc

	doneCh chan struct{}
}

// Options bundles the construction inputs that the caller (cmd/boss)
// resolves from environment variables and the entry-point registry,
// keeping this package free of any dependency on apps/.
type Options struct {
	Backend     halcontract.HardwareBackendKind
	EntryPoints map[string]runner.EntryPoint
	Secret      miniapp.SecretLookup
}

// New runs spec §4.8's startup steps 2-6: initializes logging (done by
// the caller, passed in as log), constructs the bus and then the HAL
// backend (which is handed the bus so its output.* events reach it),
// and C3-C6. Step 1 (config load) has already happened by the time cfg
// reaches here, since its failure uses a different exit code than the
// rest of startup.
func New(cfg *config.Config, log zerolog.Logger, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, log: log, doneCh: make(chan struct{})}

	o.bus = bus.New(log, bus.WithQueueSize(cfg.System.EventQueueSize))

	hal, err := buildHAL(cfg, log, o.bus, opts.Backend)
	if err != nil {
		o.bus.Stop(context.Background())
		return nil, fmt.Errorf("orchestrator: construct hal backend %s: %w", opts.Backend, err)
	}
	o.hal = hal

	o.monitor = switchmon.New(o.hal, o.bus, log)
	o.gate = gate.New(o.hal, o.bus, log)

	o.registry = registry.New(log)
	if err := o.registry.Scan(cfg.System.AppsDirectory); err != nil {
		return nil, fmt.Errorf("orchestrator: scan apps directory: %w", err)
	}
	if err := o.registry.LoadMappings(cfg.System.AppMappingsFile); err != nil {
		return nil, fmt.Errorf("orchestrator: load app mappings: %w", err)
	}

	assetDir := func(appName string) string {
		return filepath.Join(cfg.System.AppsDirectory, appName)
	}
	o.runner = runner.New(o.hal, o.bus, log, opts.EntryPoints, assetDir,
		cfg.Hardware.ScreenWidth, cfg.Hardware.ScreenHeight, opts.Secret)

	if startupManifest, ok := o.registry.ByName(cfg.System.StartupApp); ok {
		o.runner.SetStartupManifest(startupManifest, 0)
	}

	if opts.Backend == halcontract.BackendEmulator {
		emHAL, ok := o.hal.(*emulator.HAL)
		if !ok {
			return nil, fmt.Errorf("orchestrator: emulator surface requires the emulator backend")
		}
		o.emulator = emulatorsurface.New(o.bus, emHAL, log)
	}

	o.registerSystemHandlers()

	return o, nil
}

func buildHAL(cfg *config.Config, log zerolog.Logger, b *bus.Bus, kind halcontract.HardwareBackendKind) (halcontract.HAL, error) {
	switch kind {
	case halcontract.BackendMock:
		return mock.New(b), nil
	case halcontract.BackendEmulator:
		return emulator.New(b), nil
	case halcontract.BackendGPIO:
		pinCfg := gpio.PinConfig{
			ButtonPins: map[halcontract.ButtonId]string{
				halcontract.ButtonRed:    cfg.Hardware.ButtonPins["red"],
				halcontract.ButtonYellow: cfg.Hardware.ButtonPins["yellow"],
				halcontract.ButtonGreen:  cfg.Hardware.ButtonPins["green"],
				halcontract.ButtonBlue:   cfg.Hardware.ButtonPins["blue"],
			},
			LedPins: map[halcontract.LedId]string{
				halcontract.LedRed:    cfg.Hardware.LedPins["red"],
				halcontract.LedYellow: cfg.Hardware.LedPins["yellow"],
				halcontract.LedGreen:  cfg.Hardware.LedPins["green"],
				halcontract.LedBlue:   cfg.Hardware.LedPins["blue"],
			},
			MuxSelect:     cfg.Hardware.MuxSelectPins,
			MuxCommon:     cfg.Hardware.MuxCommonPin,
			DisplayClock:  cfg.Hardware.DisplayClockPin,
			DisplayData:   cfg.Hardware.DisplayDataPin,
			ConsoleDevice: cfg.Hardware.ConsoleDevice,
		}
		return gpio.New(log, b, pinCfg)
	default:
		return nil, fmt.Errorf("unknown hardware backend kind %q", kind)
	}
}

// registerSystemHandlers wires step 6 of §4.8: go-button launches the
// resolved app, and system.shutdown.initiated tears everything down.
func (o *Orchestrator) registerSystemHandlers() {
	o.goSubID = o.bus.Subscribe(busevents.InputButtonPressed, func(ev bus.Event) {
		button, _ := ev.Payload["button"].(string)
		if button != string(halcontract.ButtonGo) {
			return
		}
		o.onGoPressed()
	}, nil)

	o.shutdownSub = o.bus.Subscribe(busevents.SystemShutdownInitiated, func(bus.Event) {
		go o.teardown()
	}, nil)
}

func (o *Orchestrator) onGoPressed() {
	v, err := o.hal.ReadSwitches(context.Background())
	if err != nil {
		o.log.Warn().Err(err).Msg("go pressed but read_switches failed")
		return
	}

	manifest := o.registry.Resolve(v)
	if manifest == nil {
		o.log.Info().Int("switch_value", int(v)).Msg("go pressed, no app mapped to this value")
		return
	}

	missing := registry.MissingEnv(manifest, os.LookupEnv)
	if len(missing) > 0 {
		o.bus.Publish(busevents.SystemError, map[string]any{
			"code":    "missing_required_env",
			"message": fmt.Sprintf("app %s missing required env vars: %v", manifest.Name, missing),
		}, "orchestrator")
		return
	}

	if err := o.runner.Launch(manifest, v); err != nil {
		o.log.Warn().Err(err).Str("app", manifest.Name).Msg("launch failed")
	}
}

// Start runs step 7 (launch the startup app) and starts the switch
// monitor and, if active, the emulator surface. It does not block.
func (o *Orchestrator) Start() error {
	o.monitorCtx, o.monitorCancel = context.WithCancel(context.Background())
	go o.monitor.Run(o.monitorCtx)

	if o.emulator != nil {
		port := o.cfg.System.EmulatorPort
		if port == 0 {
			port = 8070
		}
		go func() {
			addr := fmt.Sprintf("127.0.0.1:%d", port)
			if err := o.emulator.ListenAndServe(addr); err != nil {
				o.log.Error().Err(err).Msg("emulator surface stopped unexpectedly")
			}
		}()
	}

	if startupManifest, ok := o.registry.ByName(o.cfg.System.StartupApp); ok {
		if err := o.runner.Launch(startupManifest, 0); err != nil {
			return fmt.Errorf("orchestrator: launch startup app: %w", err)
		}
	} else {
		o.log.Warn().Str("startup_app", o.cfg.System.StartupApp).Msg("startup app not found in registry")
	}
	return nil
}

// InitiateShutdown publishes system.shutdown.initiated, which the
// registered handler turns into an asynchronous teardown.
func (o *Orchestrator) InitiateShutdown(reason string) {
	o.bus.Publish(busevents.SystemShutdownInitiated, map[string]any{"reason": reason}, "orchestrator")
}

func (o *Orchestrator) teardown() {
	if o.monitorCancel != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		o.monitor.Stop(stopCtx)
		cancel()
		o.monitorCancel()
	}

	o.gate.Close(context.Background())

	if err := o.runner.Shutdown(); err != nil {
		o.log.Warn().Err(err).Msg("runner shutdown did not complete cleanly")
	}

	if o.emulator != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.emulator.Shutdown(shCtx); err != nil {
			o.log.Warn().Err(err).Msg("emulator surface shutdown error")
		}
		cancel()
	}

	if err := o.hal.Close(); err != nil {
		o.log.Warn().Err(err).Msg("hal close error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	o.bus.Stop(drainCtx)
	cancel()

	close(o.doneCh)
}

// Wait blocks until teardown has completed.
func (o *Orchestrator) Wait() {
	<-o.doneCh
}
