// Package miniapp implements the Mini-App API (C7): the single narrow
// facade handed to each running mini-app. Every method here is the
// entire set of things a mini-app may do — forbidden operations (direct
// hardware access, writes to the 7-seg, background tasks untied to the
// cancel signal, filesystem writes outside the app's asset directory)
// simply have no corresponding method, per spec §4.7's "enforced by the
// facade, not social convention."
package miniapp

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/halcontract"
)

// ErrAssetTraversal is returned by AssetPath when filename would resolve
// outside the app's own asset directory.
var ErrAssetTraversal = errors.New("miniapp: asset path escapes app directory")

// SecretLookup resolves a named secret from the process environment.
// Returns ("", false) if absent. Never logged by the caller.
type SecretLookup func(name string) (string, bool)

// Api is the facade constructed fresh for each AppRun (spec §3:
// "created per AppRun and captured by the mini-app... may not outlive
// the AppRun").
type Api struct {
	appName  string
	bus      *bus.Bus
	hal      halcontract.HAL
	assetDir string
	screenW  int
	screenH  int
	log      zerolog.Logger
	secret   SecretLookup

	subIDs []string
}

// New constructs the facade for one AppRun of appName.
func New(appName string, b *bus.Bus, hal halcontract.HAL, assetDir string, screenW, screenH int, log zerolog.Logger, secret SecretLookup) *Api {
	return &Api{
		appName:  appName,
		bus:      b,
		hal:      hal,
		assetDir: assetDir,
		screenW:  screenW,
		screenH:  screenH,
		log:      log.With().Str("app", appName).Logger(),
		secret:   secret,
	}
}

// DisplayText renders content on the main screen.
func (a *Api) DisplayText(ctx context.Context, content string, fontSize int, fg, bg halcontract.Color, align halcontract.Align) error {
	return a.hal.DrawText(ctx, content, halcontract.TextOptions{
		FontSize:   fontSize,
		Foreground: fg,
		Background: bg,
		Align:      align,
	})
}

// ImageCapable is an optional capability a HAL backend may implement.
// Image support is optional per spec §9; mini-apps must degrade
// gracefully when the active backend doesn't implement it.
type ImageCapable interface {
	DrawImage(ctx context.Context, data []byte, scale float64, x, y int) error
}

// ErrImageNotSupported is returned by DisplayImage when the active HAL
// backend does not implement ImageCapable.
var ErrImageNotSupported = errors.New("miniapp: active screen backend does not support images")

// DisplayImage draws image bytes if the active backend advertises
// ImageCapable, else returns ErrImageNotSupported so the mini-app can
// fall back to a text rendering.
func (a *Api) DisplayImage(ctx context.Context, data []byte, scale float64, x, y int) error {
	ic, ok := a.hal.(ImageCapable)
	if !ok {
		return ErrImageNotSupported
	}
	return ic.DrawImage(ctx, data, scale, x, y)
}

// ClearScreen clears the main screen to bg.
func (a *Api) ClearScreen(ctx context.Context, bg halcontract.Color) error {
	return a.hal.ClearScreen(ctx, bg)
}

// GetScreenSize returns the configured screen dimensions.
func (a *Api) GetScreenSize() (width, height int) {
	return a.screenW, a.screenH
}

// SetLed sets one LED's state. Mini-apps are expected (by convention,
// per spec §4.7) to light a LED only while its button is valid input;
// the facade does not enforce that convention, only the narrower set
// of hard prohibitions spec §4.7 actually names.
func (a *Api) SetLed(ctx context.Context, color halcontract.LedId, on bool, brightness float64) error {
	return a.hal.SetLed(ctx, color, halcontract.LedState{On: on, Brightness: brightness})
}

// Subscribe registers handler for eventType, returning a subscription
// id for later Unsubscribe. Subscriptions are not auto-cleaned on
// AppRun termination; the Runner calls UnsubscribeAll when the app
// stops.
func (a *Api) Subscribe(eventType string, handler bus.Handler, filter bus.Filter) string {
	id := a.bus.Subscribe(eventType, handler, filter)
	a.subIDs = append(a.subIDs, id)
	return id
}

// Unsubscribe removes one subscription by id.
func (a *Api) Unsubscribe(id string) {
	a.bus.Unsubscribe(id)
}

// Publish emits an event stamped with this app's source tag.
func (a *Api) Publish(eventType string, payload map[string]any) {
	a.bus.Publish(eventType, payload, "app:"+a.appName)
}

// UnsubscribeAll removes every subscription this Api instance created.
// Called by the Runner when the AppRun terminates, since the Api may
// not outlive it.
func (a *Api) UnsubscribeAll() {
	for _, id := range a.subIDs {
		a.bus.Unsubscribe(id)
	}
	a.subIDs = nil
}

// LogInfo logs msg tagged with this app's context.
func (a *Api) LogInfo(msg string) {
	a.log.Info().Msg(msg)
}

// LogError logs msg tagged with this app's context.
func (a *Api) LogError(msg string) {
	a.log.Error().Msg(msg)
}

// AssetPath resolves filename inside this app's own asset directory.
// Any attempt to traverse outside it returns ErrAssetTraversal.
func (a *Api) AssetPath(filename string) (string, error) {
	joined := filepath.Join(a.assetDir, filename)
	cleanDir := filepath.Clean(a.assetDir)
	cleanJoined := filepath.Clean(joined)
	if cleanJoined != cleanDir && !strings.HasPrefix(cleanJoined, cleanDir+string(filepath.Separator)) {
		return "", ErrAssetTraversal
	}
	return cleanJoined, nil
}

// Secret returns the named secret from the process environment, or
// ("", false) if absent. Never logged.
func (a *Api) Secret(name string) (string, bool) {
	if a.secret == nil {
		return "", false
	}
	return a.secret(name)
}
