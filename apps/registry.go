// Package apps is the static entry-point registry substituting for
// dynamic plug-in loading (spec §9): each mini-app is an ordinary Go
// package under apps/<name> exposing a Run function matching
// runner.EntryPoint, named here against its manifest's "name" field.
// The App Registry (internal/registry) separately scans apps/<name>/
// manifest.json on disk at startup — these are two independent
// resolution axes (SwitchValue → Manifest via the filesystem scan,
// Manifest.Name → EntryPoint via this map) that the orchestrator joins.
package apps

import (
	"github.com/vfiduccia/boss/apps/clock"
	"github.com/vfiduccia/boss/apps/echo"
	"github.com/vfiduccia/boss/apps/startup"
	"github.com/vfiduccia/boss/internal/runner"
)

// EntryPoints returns every statically registered mini-app, keyed by
// the name in its manifest.json.
func EntryPoints() map[string]runner.EntryPoint {
	return map[string]runner.EntryPoint{
		"startup": startup.Run,
		"clock":   clock.Run,
		"echo":    echo.Run,
	}
}
