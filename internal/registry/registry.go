// Package registry implements the App Registry (C5): it scans a
// directory of mini-app descriptors, validates manifests, loads the
// switch-value-to-app mapping, and resolves the currently-dialed switch
// value to a runnable Manifest.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vfiduccia/boss/internal/bosserr"
	"github.com/vfiduccia/boss/internal/halcontract"
)

const manifestFileName = "manifest.json"

// Registry holds every successfully-validated manifest plus the
// switch→app mapping, and resolves switch values to manifests.
type Registry struct {
	log zerolog.Logger

	mu        sync.RWMutex
	manifests map[string]*Manifest               // app name -> manifest
	mapping   map[halcontract.SwitchValue]string  // switch value -> app name
	params    map[string]any                      // app_mappings.json "parameters"
	unavail   map[string]string                   // app name -> reason unavailable (manifest error)
}

// New constructs an empty Registry. Call Scan and LoadMappings to
// populate it.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		log:       log.With().Str("component", "app_registry").Logger(),
		manifests: make(map[string]*Manifest),
		mapping:   make(map[halcontract.SwitchValue]string),
		unavail:   make(map[string]string),
	}
}

// Scan walks appsDir's immediate subdirectories looking for
// manifest.json. Invalid manifests are recorded and logged but never
// fail the overall scan (spec §4.5).
func (r *Registry) Scan(appsDir string) error {
	entries, err := os.ReadDir(appsDir)
	if err != nil {
		return fmt.Errorf("registry: read apps directory %s: %w", appsDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirName := entry.Name()
		manifestPath := filepath.Join(appsDir, dirName, manifestFileName)

		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			mErr := &bosserr.ManifestError{AppDir: dirName, Reason: err.Error()}
			r.log.Warn().Err(mErr).Str("app", dirName).Msg("no readable manifest, app unavailable")
			r.unavail[dirName] = mErr.Error()
			continue
		}

		m, warnings, err := parseManifest(raw, dirName)
		if err != nil {
			mErr := &bosserr.ManifestError{AppDir: dirName, Reason: err.Error()}
			r.log.Warn().Err(mErr).Str("app", dirName).Msg("invalid manifest, app unavailable")
			r.unavail[dirName] = mErr.Error()
			continue
		}
		for _, w := range warnings {
			r.log.Warn().Str("app", dirName).Str("warning", w).Msg("manifest warning")
		}

		r.manifests[m.Name] = m
	}
	return nil
}

// appMappingsFile is the JSON shape of spec §6's app mappings file.
type appMappingsFile struct {
	AppMappings map[string]string `json:"app_mappings"`
	Parameters  map[string]any    `json:"parameters"`
}

// LoadMappings reads the switch→app mapping file. Gaps are permitted;
// a mapping naming an app that failed manifest validation is kept but
// will simply never resolve to a runnable Manifest.
func (r *Registry) LoadMappings(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read app mappings %s: %w", path, err)
	}

	var parsed appMappingsFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("registry: parse app mappings %s: %w", path, err)
	}

	mapping := make(map[halcontract.SwitchValue]string, len(parsed.AppMappings))
	for key, appName := range parsed.AppMappings {
		var v int
		if _, err := fmt.Sscanf(key, "%d", &v); err != nil || v < 0 || v > 255 {
			return fmt.Errorf("registry: app mapping key %q is not a switch value in [0,255]", key)
		}
		mapping[halcontract.SwitchValue(v)] = appName
	}

	r.mu.Lock()
	r.mapping = mapping
	r.params = parsed.Parameters
	r.mu.Unlock()
	return nil
}

// Resolve returns the manifest mapped to v, or nil if v is unmapped or
// maps to an app that failed manifest validation.
func (r *Registry) Resolve(v halcontract.SwitchValue) *Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appName, ok := r.mapping[v]
	if !ok {
		return nil
	}
	return r.manifests[appName]
}

// ByName returns the manifest for appName, if it validated successfully.
func (r *Registry) ByName(appName string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[appName]
	return m, ok
}

// MissingEnv returns the required_env names from m that are not set in
// the process environment, checked at resolve time per spec §4.5.
func MissingEnv(m *Manifest, lookup func(string) (string, bool)) []string {
	var missing []string
	for _, name := range m.RequiredEnv {
		if _, ok := lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Parameters returns the free-form "parameters" object loaded from the
// app mappings file.
func (r *Registry) Parameters() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params
}

// Unavailable reports every app that failed manifest validation, keyed
// by directory name, with the rejection reason.
func (r *Registry) Unavailable() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.unavail))
	for k, v := range r.unavail {
		out[k] = v
	}
	return out
}
