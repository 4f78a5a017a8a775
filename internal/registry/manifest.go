package registry

import (
	"encoding/json"
	"fmt"
)

// TimeoutBehavior is how the Runner handles an app that exceeds its
// timeout_seconds.
type TimeoutBehavior string

const (
	TimeoutReturn TimeoutBehavior = "return"
	TimeoutRerun  TimeoutBehavior = "rerun"
	TimeoutNone   TimeoutBehavior = "none"
)

var validTags = map[string]bool{
	"admin": true, "content": true, "network": true,
	"sensor": true, "novelty": true, "system": true, "utility": true,
}

// deprecatedKeys are rejected outright in new manifests (spec §3).
var deprecatedKeys = map[string]bool{
	"id": true, "title": true, "assets_required": true,
	"api_keys": true, "instructions": true,
}

const (
	defaultEntryPoint             = "main"
	defaultTimeoutSeconds         = 900
	defaultTimeoutCooldownSeconds = 1
)

// Manifest is a validated mini-app descriptor (spec §3).
type Manifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`

	EntryPoint             string          `json:"entry_point"`
	TimeoutSeconds         int             `json:"timeout_seconds"`
	TimeoutBehavior        TimeoutBehavior `json:"timeout_behavior"`
	TimeoutCooldownSeconds int             `json:"timeout_cooldown_seconds"`

	RequiresNetwork bool     `json:"requires_network"`
	RequiresAudio   bool     `json:"requires_audio"`
	ExternalAPIs    []string `json:"external_apis"`
	RequiredEnv     []string `json:"required_env"`

	Config map[string]any `json:"config"`
}

// parseManifest decodes raw manifest JSON, validates it against dirName
// (the app's own directory name), and fills in tag-inferred defaults.
// Unknown keys produce warnings (returned, non-fatal); deprecated keys
// and structural problems return an error, which the caller (registry
// Scan) turns into a ManifestError and marks the app unavailable.
func parseManifest(raw []byte, dirName string) (*Manifest, []string, error) {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, nil, fmt.Errorf("invalid json: %w", err)
	}

	for key := range asMap {
		if deprecatedKeys[key] {
			return nil, nil, fmt.Errorf("deprecated key %q is no longer supported", key)
		}
	}

	var warnings []string
	for key := range asMap {
		if !knownManifestKeys[key] {
			warnings = append(warnings, fmt.Sprintf("unknown key %q", key))
		}
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("invalid json: %w", err)
	}

	if m.Name == "" {
		return nil, nil, fmt.Errorf("missing required field \"name\"")
	}
	if m.Name != dirName {
		return nil, nil, fmt.Errorf("name %q does not match directory %q", m.Name, dirName)
	}
	if len(m.Tags) == 0 {
		return nil, nil, fmt.Errorf("tags must be a non-empty subset of the known tag set")
	}
	for _, tag := range m.Tags {
		if !validTags[tag] {
			return nil, nil, fmt.Errorf("invalid tag %q", tag)
		}
	}

	if m.EntryPoint == "" {
		m.EntryPoint = defaultEntryPoint
	}
	if m.TimeoutSeconds <= 0 {
		m.TimeoutSeconds = defaultTimeoutSeconds
	}
	if m.TimeoutBehavior == "" {
		m.TimeoutBehavior = inferTimeoutBehavior(m.Tags)
	}
	switch m.TimeoutBehavior {
	case TimeoutReturn, TimeoutRerun, TimeoutNone:
	default:
		return nil, nil, fmt.Errorf("invalid timeout_behavior %q", m.TimeoutBehavior)
	}
	if m.TimeoutCooldownSeconds <= 0 {
		m.TimeoutCooldownSeconds = defaultTimeoutCooldownSeconds
	}

	return &m, warnings, nil
}

func inferTimeoutBehavior(tags []string) TimeoutBehavior {
	for _, tag := range tags {
		if tag == "network" {
			return TimeoutRerun
		}
	}
	return TimeoutReturn
}

var knownManifestKeys = map[string]bool{
	"name": true, "description": true, "version": true, "author": true,
	"tags": true, "entry_point": true, "timeout_seconds": true,
	"timeout_behavior": true, "timeout_cooldown_seconds": true,
	"requires_network": true, "requires_audio": true,
	"external_apis": true, "required_env": true, "config": true,
}
