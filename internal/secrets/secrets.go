// Package secrets loads a read-only secrets file into the process
// environment before the orchestrator constructs anything else (spec
// §6: "a separate secrets file may be loaded into env by the process
// manager"). Values are only ever exposed to mini-apps through
// miniapp.Api.Secret; they are never logged.
package secrets

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadIntoEnv reads a dotenv-style file (KEY=VALUE per line, '#'
// comments, blank lines ignored) and calls os.Setenv for each entry
// not already present in the environment — an explicit env var always
// wins over the secrets file. Missing path is not an error; BOSS_
// SECRETS_PATH is optional.
func LoadIntoEnv(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("secrets: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("secrets: %s:%d: missing '='", path, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" {
			return fmt.Errorf("secrets: %s:%d: empty key", path, line)
		}
		if _, present := os.LookupEnv(key); present {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("secrets: setenv %s: %w", key, err)
		}
	}
	return scanner.Err()
}
