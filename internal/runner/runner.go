// Package runner implements the App Runner (C6): it launches and stops
// a single mini-app at a time, owns its cancellation token, enforces
// timeout and post-timeout policy, and emits lifecycle events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bosserr"
	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/halcontract"
	"github.com/vfiduccia/boss/internal/miniapp"
	"github.com/vfiduccia/boss/internal/registry"
)

// EntryPoint is a mini-app's single entry function. It must return once
// ctx is canceled, within the cooperative cadence spec §5 recommends
// (≤0.5s, ≤0.2s recommended).
type EntryPoint func(ctx context.Context, api *miniapp.Api) error

const gracePeriod = 2 * time.Second

// ErrLeaked is returned by Launch/Stop when a previous app failed to
// terminate within the grace period. Per spec §9's design note, a stuck
// task that cannot be forcibly killed is treated as a leaked resource;
// the Runner refuses further launches until the process is restarted.
var ErrLeaked = errors.New("runner: previous app leaked, launches refused until restart")

// ErrShuttingDown is returned by Launch once shutdown has begun.
var ErrShuttingDown = errors.New("runner: shutting down, launches refused")

// ErrNoEntryPoint is returned when a manifest names an app with no
// registered EntryPoint.
var ErrNoEntryPoint = errors.New("runner: no entry point registered for app")

// AppRun is the live record of one mini-app execution.
type AppRun struct {
	Manifest    *registry.Manifest
	SwitchValue halcontract.SwitchValue
	Generation  int
	StartedAt   time.Time

	cancel context.CancelFunc
	done   chan struct{}
	api    *miniapp.Api
	timer  *time.Timer

	mu     sync.Mutex
	reason string
}

func (r *AppRun) setReasonOnce(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reason == "" {
		r.reason = reason
	}
}

func (r *AppRun) getReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// AssetDirFn resolves an app's asset directory from its name.
type AssetDirFn func(appName string) string

// Runner is the single composition point owning at most one AppRun.
type Runner struct {
	hal  halcontract.HAL
	bus  *bus.Bus
	log  zerolog.Logger
	apps map[string]EntryPoint

	assetDir AssetDirFn
	screenW  int
	screenH  int
	secret   miniapp.SecretLookup

	mu              sync.Mutex
	current         *AppRun
	leaked          bool
	shuttingDown    bool
	nextGeneration  int
	startupManifest *registry.Manifest
	startupSwitch   halcontract.SwitchValue
}

// New constructs a Runner. apps maps a manifest's name to its statically
// registered Go entry point (spec §9: the language disallows dynamic
// plug-in loading, so a static map substitutes for it).
func New(hal halcontract.HAL, b *bus.Bus, log zerolog.Logger, apps map[string]EntryPoint, assetDir AssetDirFn, screenW, screenH int, secret miniapp.SecretLookup) *Runner {
	return &Runner{
		hal:      hal,
		bus:      b,
		log:      log.With().Str("component", "app_runner").Logger(),
		apps:     apps,
		assetDir: assetDir,
		screenW:  screenW,
		screenH:  screenH,
		secret:   secret,
	}
}

// SetStartupManifest records the admin app launched at boot and
// relaunched after a return-timeout (spec §9, Open Question: "yes").
func (r *Runner) SetStartupManifest(m *registry.Manifest, switchValue halcontract.SwitchValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startupManifest = m
	r.startupSwitch = switchValue
}

// Current returns the active AppRun, or nil.
func (r *Runner) Current() *AppRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Launch stops any running app (reason=user_stop) and starts manifest.
func (r *Runner) Launch(manifest *registry.Manifest, switchValue halcontract.SwitchValue) error {
	r.mu.Lock()
	if r.leaked {
		r.mu.Unlock()
		return ErrLeaked
	}
	if r.shuttingDown {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	current := r.current
	r.mu.Unlock()

	if current != nil {
		if err := r.Stop(busevents.ReasonUserStop); err != nil {
			return err
		}
	}

	entry, ok := r.apps[manifest.Name]
	if !ok {
		r.bus.Publish(busevents.SystemError, map[string]any{
			"code":    "no_entry_point",
			"message": fmt.Sprintf("app %s has no registered entry point", manifest.Name),
		}, "app_runner")
		return ErrNoEntryPoint
	}

	r.mu.Lock()
	r.nextGeneration++
	generation := r.nextGeneration
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	assetDir := ""
	if r.assetDir != nil {
		assetDir = r.assetDir(manifest.Name)
	}
	api := miniapp.New(manifest.Name, r.bus, r.hal, assetDir, r.screenW, r.screenH, r.log, r.secret)

	run := &AppRun{
		Manifest:    manifest,
		SwitchValue: switchValue,
		Generation:  generation,
		StartedAt:   time.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
		api:         api,
	}

	r.mu.Lock()
	r.current = run
	r.mu.Unlock()

	r.bus.Publish(busevents.SystemAppStarted, map[string]any{
		"app_name":     manifest.Name,
		"switch_value": int(switchValue),
	}, "app_runner")

	if manifest.TimeoutSeconds > 0 {
		run.timer = time.AfterFunc(time.Duration(manifest.TimeoutSeconds)*time.Second, func() {
			r.onTimeout(run)
		})
	}

	go r.supervise(ctx, run, entry)
	return nil
}

func (r *Runner) supervise(ctx context.Context, run *AppRun, entry EntryPoint) {
	var runErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				runErr = fmt.Errorf("panic: %v", p)
			}
		}()
		runErr = entry(ctx, run.api)
	}()
	r.finish(run, runErr)
}

func (r *Runner) finish(run *AppRun, runErr error) {
	if run.timer != nil {
		run.timer.Stop()
	}
	run.api.UnsubscribeAll()

	reason := run.getReason()
	if reason == "" {
		if runErr != nil {
			reason = busevents.ReasonError
		} else {
			reason = busevents.ReasonNormal
		}
	}

	r.mu.Lock()
	if r.current == run {
		r.current = nil
	}
	leaked := r.leaked
	shuttingDown := r.shuttingDown
	r.mu.Unlock()

	if runErr != nil {
		appErr := &bosserr.AppError{AppName: run.Manifest.Name, Err: runErr}
		r.log.Warn().Err(appErr).Msg("app terminated with error")
		r.bus.Publish(busevents.SystemAppError, map[string]any{
			"app_name": run.Manifest.Name,
			"error":    appErr.Error(),
		}, "app_runner")
	}

	r.bus.Publish(busevents.SystemAppStopped, map[string]any{
		"app_name":     run.Manifest.Name,
		"switch_value": int(run.SwitchValue),
		"reason":       reason,
	}, "app_runner")

	// Closed only after system.app.stopped is queued, so a Launch waiting
	// in Stop publishes its system.app.started after this app's stopped.
	close(run.done)

	if leaked || shuttingDown || reason != busevents.ReasonTimeout {
		return
	}

	switch run.Manifest.TimeoutBehavior {
	case registry.TimeoutReturn:
		r.mu.Lock()
		startup := r.startupManifest
		startupSwitch := r.startupSwitch
		r.mu.Unlock()
		if startup != nil {
			go r.Launch(startup, startupSwitch)
		}
	case registry.TimeoutRerun:
		cooldown := time.Duration(run.Manifest.TimeoutCooldownSeconds) * time.Second
		time.AfterFunc(cooldown, func() {
			go r.Launch(run.Manifest, run.SwitchValue)
		})
	}
}

func (r *Runner) onTimeout(run *AppRun) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current != run {
		return
	}

	if run.Manifest.TimeoutBehavior == registry.TimeoutNone {
		r.log.Info().Str("app", run.Manifest.Name).Msg("timeout reached, behavior=none, app continues")
		return
	}

	timeoutErr := &bosserr.TimeoutError{AppName: run.Manifest.Name, TimeoutSeconds: run.Manifest.TimeoutSeconds}
	r.log.Warn().Err(timeoutErr).Msg("app timed out")

	run.setReasonOnce(busevents.ReasonTimeout)
	run.cancel()

	select {
	case <-run.done:
	case <-time.After(gracePeriod):
		r.markLeaked(run)
	}
}

// Stop signals the active app (if any) to terminate with reason and
// waits up to the grace period for it to do so.
func (r *Runner) Stop(reason string) error {
	run := r.Current()
	if run == nil {
		return nil
	}

	run.setReasonOnce(reason)
	if run.timer != nil {
		run.timer.Stop()
	}
	run.cancel()

	select {
	case <-run.done:
		return nil
	case <-time.After(gracePeriod):
		r.markLeaked(run)
		return ErrLeaked
	}
}

func (r *Runner) markLeaked(run *AppRun) {
	r.mu.Lock()
	r.leaked = true
	r.mu.Unlock()
	r.bus.Publish(busevents.SystemError, map[string]any{
		"code":    "app_leaked",
		"message": fmt.Sprintf("app %s did not terminate within grace period; launches refused until restart", run.Manifest.Name),
	}, "app_runner")
}

// Shutdown stops the active app with reason=shutdown and refuses any
// further launches.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	r.shuttingDown = true
	r.mu.Unlock()
	return r.Stop(busevents.ReasonShutdown)
}
