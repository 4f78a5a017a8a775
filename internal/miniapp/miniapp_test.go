package miniapp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/bus"
	"github.com/vfiduccia/boss/internal/hal/mock"
	"github.com/vfiduccia/boss/internal/halcontract"
)

func newTestApi(t *testing.T, assetDir string) (*Api, *bus.Bus, *mock.HAL) {
	b := bus.New(zerolog.Nop())
	t.Cleanup(func() { b.Stop(context.Background()) })
	hal := mock.New(b)
	secrets := map[string]string{"API_KEY": "shh"}
	api := New("testapp", b, hal, assetDir, 320, 240, zerolog.Nop(), func(name string) (string, bool) {
		v, ok := secrets[name]
		return v, ok
	})
	return api, b, hal
}

func TestAssetPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icon.png"), []byte("x"), 0644))
	api, _, _ := newTestApi(t, dir)

	p, err := api.AssetPath("icon.png")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "icon.png"), p)

	_, err = api.AssetPath("../../etc/passwd")
	require.ErrorIs(t, err, ErrAssetTraversal)
}

func TestSecretLookup(t *testing.T) {
	api, _, _ := newTestApi(t, t.TempDir())
	v, ok := api.Secret("API_KEY")
	require.True(t, ok)
	require.Equal(t, "shh", v)

	_, ok = api.Secret("MISSING")
	require.False(t, ok)
}

func TestPublishStampsAppSource(t *testing.T) {
	api, b, _ := newTestApi(t, t.TempDir())
	events := make(chan bus.Event, 1)
	b.Subscribe("custom.event", func(ev bus.Event) { events <- ev }, nil)

	api.Publish("custom.event", map[string]any{"x": 1})

	select {
	case ev := <-events:
		require.Equal(t, "app:testapp", ev.Source)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestDisplayImageUnsupportedByMock(t *testing.T) {
	api, _, _ := newTestApi(t, t.TempDir())
	err := api.DisplayImage(context.Background(), []byte{0x1}, 1.0, 0, 0)
	require.ErrorIs(t, err, ErrImageNotSupported)
}

func TestSetLedDelegatesToHal(t *testing.T) {
	api, _, hal := newTestApi(t, t.TempDir())
	require.NoError(t, api.SetLed(context.Background(), halcontract.LedBlue, true, 1))
	require.True(t, hal.LedState(halcontract.LedBlue).On)
}
