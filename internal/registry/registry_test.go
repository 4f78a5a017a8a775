package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vfiduccia/boss/internal/halcontract"
)

func writeApp(t *testing.T, appsDir, name, manifestJSON string) {
	t.Helper()
	dir := filepath.Join(appsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), []byte(manifestJSON), 0644))
}

func TestScanValidManifestResolves(t *testing.T) {
	appsDir := t.TempDir()
	writeApp(t, appsDir, "clock", `{
		"name": "clock", "tags": ["utility"], "version": "1.0"
	}`)

	r := New(zerolog.Nop())
	require.NoError(t, r.Scan(appsDir))

	m, ok := r.ByName("clock")
	require.True(t, ok)
	require.Equal(t, defaultEntryPoint, m.EntryPoint)
	require.Equal(t, TimeoutReturn, m.TimeoutBehavior)
}

func TestScanNameDirectoryMismatchMarksUnavailable(t *testing.T) {
	appsDir := t.TempDir()
	writeApp(t, appsDir, "foo", `{"name": "bar", "tags": ["utility"]}`)

	r := New(zerolog.Nop())
	require.NoError(t, r.Scan(appsDir))

	_, ok := r.ByName("foo")
	require.False(t, ok)
	_, ok = r.ByName("bar")
	require.False(t, ok)
	require.Contains(t, r.Unavailable(), "foo")
}

func TestScanDeprecatedKeyRejected(t *testing.T) {
	appsDir := t.TempDir()
	writeApp(t, appsDir, "weather", `{"id": "123", "name": "weather", "tags": ["network"]}`)

	r := New(zerolog.Nop())
	require.NoError(t, r.Scan(appsDir))

	_, ok := r.ByName("weather")
	require.False(t, ok)
}

func TestNetworkTagInfersRerun(t *testing.T) {
	appsDir := t.TempDir()
	writeApp(t, appsDir, "weather", `{"name": "weather", "tags": ["network"]}`)

	r := New(zerolog.Nop())
	require.NoError(t, r.Scan(appsDir))

	m, ok := r.ByName("weather")
	require.True(t, ok)
	require.Equal(t, TimeoutRerun, m.TimeoutBehavior)
}

func TestLoadMappingsAndResolve(t *testing.T) {
	appsDir := t.TempDir()
	writeApp(t, appsDir, "clock", `{"name": "clock", "tags": ["utility"]}`)

	mappingsPath := filepath.Join(t.TempDir(), "app_mappings.json")
	require.NoError(t, os.WriteFile(mappingsPath, []byte(`{
		"app_mappings": {"42": "clock"},
		"parameters": {"timezone": "UTC"}
	}`), 0644))

	r := New(zerolog.Nop())
	require.NoError(t, r.Scan(appsDir))
	require.NoError(t, r.LoadMappings(mappingsPath))

	m := r.Resolve(halcontract.SwitchValue(42))
	require.NotNil(t, m)
	require.Equal(t, "clock", m.Name)

	require.Nil(t, r.Resolve(halcontract.SwitchValue(99)))
	require.Equal(t, "UTC", r.Parameters()["timezone"])
}

func TestMissingEnvDetected(t *testing.T) {
	m := &Manifest{Name: "weather", RequiredEnv: []string{"WEATHER_API_KEY"}}
	env := map[string]string{}
	missing := MissingEnv(m, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Equal(t, []string{"WEATHER_API_KEY"}, missing)
}
