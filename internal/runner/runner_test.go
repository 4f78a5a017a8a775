package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/busevents"
	"github.com/vfiduccia/boss/internal/hal/mock"
	"github.com/vfiduccia/boss/internal/miniapp"
	"github.com/vfiduccia/boss/internal/registry"
)

func waitsForCancel(t *testing.T) EntryPoint {
	return func(ctx context.Context, api *miniapp.Api) error {
		<-ctx.Done()
		return nil
	}
}

func newTestRunner(t *testing.T, apps map[string]EntryPoint) (*Runner, *bus.Bus, chan bus.Event) {
	b := bus.New(zerolog.Nop())
	t.Cleanup(func() { b.Stop(context.Background()) })
	hal := mock.New(b)

	lifecycle := make(chan bus.Event, 64)
	b.Subscribe(busevents.SystemAppStarted, func(ev bus.Event) { lifecycle <- ev }, nil)
	b.Subscribe(busevents.SystemAppStopped, func(ev bus.Event) { lifecycle <- ev }, nil)
	b.Subscribe(busevents.SystemAppError, func(ev bus.Event) { lifecycle <- ev }, nil)

	r := New(hal, b, zerolog.Nop(), apps, func(string) string { return "" }, 320, 240, func(string) (string, bool) { return "", false })
	return r, b, lifecycle
}

func expectEvent(t *testing.T, ch chan bus.Event, eventType string, timeout time.Duration) bus.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestLaunchEmitsStartedThenStoppedOnNormalReturn(t *testing.T) {
	m := &registry.Manifest{Name: "clock", TimeoutSeconds: 900, TimeoutBehavior: registry.TimeoutReturn}
	apps := map[string]EntryPoint{
		"clock": func(ctx context.Context, api *miniapp.Api) error { return nil },
	}
	r, _, lifecycle := newTestRunner(t, apps)

	require.NoError(t, r.Launch(m, 42))

	started := expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)
	require.Equal(t, "clock", started.Payload["app_name"])
	require.Equal(t, 42, started.Payload["switch_value"])

	stopped := expectEvent(t, lifecycle, busevents.SystemAppStopped, time.Second)
	require.Equal(t, busevents.ReasonNormal, stopped.Payload["reason"])
}

func TestLaunchPreemptsRunningApp(t *testing.T) {
	apps := map[string]EntryPoint{
		"a": waitsForCancel(t),
		"b": func(ctx context.Context, api *miniapp.Api) error { return nil },
	}
	r, _, lifecycle := newTestRunner(t, apps)

	ma := &registry.Manifest{Name: "a", TimeoutSeconds: 900, TimeoutBehavior: registry.TimeoutReturn}
	mb := &registry.Manifest{Name: "b", TimeoutSeconds: 900, TimeoutBehavior: registry.TimeoutReturn}

	require.NoError(t, r.Launch(ma, 10))
	expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)

	require.NoError(t, r.Launch(mb, 20))

	stoppedA := expectEvent(t, lifecycle, busevents.SystemAppStopped, time.Second)
	require.Equal(t, "a", stoppedA.Payload["app_name"])
	require.Equal(t, busevents.ReasonUserStop, stoppedA.Payload["reason"])

	startedB := expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)
	require.Equal(t, "b", startedB.Payload["app_name"])
}

func TestAppErrorEmitsErrorThenStopped(t *testing.T) {
	apps := map[string]EntryPoint{
		"broken": func(ctx context.Context, api *miniapp.Api) error { return errors.New("boom") },
	}
	r, _, lifecycle := newTestRunner(t, apps)
	m := &registry.Manifest{Name: "broken", TimeoutSeconds: 900, TimeoutBehavior: registry.TimeoutReturn}

	require.NoError(t, r.Launch(m, 1))
	expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)

	errEv := expectEvent(t, lifecycle, busevents.SystemAppError, time.Second)
	require.Equal(t, "broken", errEv.Payload["app_name"])

	stopped := expectEvent(t, lifecycle, busevents.SystemAppStopped, time.Second)
	require.Equal(t, busevents.ReasonError, stopped.Payload["reason"])
}

func TestTimeoutReturnRelaunchesStartupApp(t *testing.T) {
	apps := map[string]EntryPoint{
		"game":    waitsForCancel(t),
		"startup": func(ctx context.Context, api *miniapp.Api) error { <-ctx.Done(); return nil },
	}
	r, _, lifecycle := newTestRunner(t, apps)

	startupManifest := &registry.Manifest{Name: "startup", TimeoutSeconds: 900, TimeoutBehavior: registry.TimeoutReturn}
	r.SetStartupManifest(startupManifest, 0)

	gameManifest := &registry.Manifest{Name: "game", TimeoutSeconds: 1, TimeoutBehavior: registry.TimeoutReturn}
	require.NoError(t, r.Launch(gameManifest, 5))
	expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)

	stopped := expectEvent(t, lifecycle, busevents.SystemAppStopped, 3*time.Second)
	require.Equal(t, busevents.ReasonTimeout, stopped.Payload["reason"])

	started := expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)
	require.Equal(t, "startup", started.Payload["app_name"])
}

func TestTimeoutRerunRelaunchesSameApp(t *testing.T) {
	apps := map[string]EntryPoint{
		"ticker": waitsForCancel(t),
	}
	r, _, lifecycle := newTestRunner(t, apps)

	m := &registry.Manifest{Name: "ticker", TimeoutSeconds: 1, TimeoutBehavior: registry.TimeoutRerun, TimeoutCooldownSeconds: 1}
	require.NoError(t, r.Launch(m, 7))
	expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)

	stopped := expectEvent(t, lifecycle, busevents.SystemAppStopped, 3*time.Second)
	require.Equal(t, busevents.ReasonTimeout, stopped.Payload["reason"])

	started := expectEvent(t, lifecycle, busevents.SystemAppStarted, 3*time.Second)
	require.Equal(t, "ticker", started.Payload["app_name"])
}

func TestTimeoutNoneDoesNotStopApp(t *testing.T) {
	done := make(chan struct{})
	apps := map[string]EntryPoint{
		"forever": func(ctx context.Context, api *miniapp.Api) error {
			<-ctx.Done()
			close(done)
			return nil
		},
	}
	r, _, lifecycle := newTestRunner(t, apps)
	m := &registry.Manifest{Name: "forever", TimeoutSeconds: 1, TimeoutBehavior: registry.TimeoutNone}
	require.NoError(t, r.Launch(m, 3))
	expectEvent(t, lifecycle, busevents.SystemAppStarted, time.Second)

	select {
	case <-done:
		t.Fatal("behavior=none must not cancel the app on timeout")
	case <-time.After(2 * time.Second):
	}

	require.NoError(t, r.Stop(busevents.ReasonUserStop))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("app should terminate within grace period after explicit stop")
	}
}
