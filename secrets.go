package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"lead-qualifier/internal/constants"
)

const googleAPIKeyName = "GOOGLE_API_KEY"

// Secrets holds the values read from the TOML secrets file
type Secrets struct {
	GoogleAPIKey string
}

// loadSecrets parses a TOML file of key/value pairs. A missing file yields empty secrets.
// Unknown keys are ignored.
func loadSecrets(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Secrets{}, nil
		}
		return Secrets{}, fmt.Errorf("error reading secrets file %s: %w", path, err)
	}

	var values map[string]interface{}
	if err := toml.Unmarshal(data, &values); err != nil {
		return Secrets{}, fmt.Errorf("error parsing secrets file %s: %w", path, err)
	}

	var secrets Secrets
	if raw, ok := values[googleAPIKeyName]; ok {
		key, ok := raw.(string)
		if !ok {
			return Secrets{}, fmt.Errorf("%s in %s must be a string", googleAPIKeyName, path)
		}
		secrets.GoogleAPIKey = strings.TrimSpace(key)
	}
	return secrets, nil
}

// resolveGoogleAPIKey prefers the environment over the secrets file.
// It reports test mode when no real key is available.
func resolveGoogleAPIKey(envValue string, secrets Secrets) (key string, testMode bool) {
	key = strings.TrimSpace(envValue)
	if key == "" {
		key = secrets.GoogleAPIKey
	}
	if key == "" || key == constants.TestModeAPIKey {
		return constants.TestModeAPIKey, true
	}
	return key, false
}
