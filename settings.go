package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"lead-qualifier/internal/constants"
)

var (
	configDir    = "config"
	settingsFile = "settings.json"

	settings      = defaultSettings()
	settingsMutex sync.RWMutex
)

func defaultSettings() Settings {
	return Settings{DefaultMaxPages: constants.DefaultMaxPages}
}

// normalize clamps persisted values into the supported range. Zero means unset.
func (s Settings) normalize() Settings {
	switch {
	case s.DefaultMaxPages == 0:
		s.DefaultMaxPages = constants.DefaultMaxPages
	case s.DefaultMaxPages < constants.MinMaxPages:
		s.DefaultMaxPages = constants.MinMaxPages
	case s.DefaultMaxPages > constants.MaxMaxPages:
		s.DefaultMaxPages = constants.MaxMaxPages
	}
	return s
}

func currentSettings() Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settings
}

// updateSettings replaces the settings and writes them to disk
func updateSettings(s Settings) (Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settings = s.normalize()
	return settings, saveSettingsLocked()
}

// saveSettingsLocked performs the actual saving without locking the mutex.
// This is to be called from functions that already hold the lock.
func saveSettingsLocked() error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, settingsFile), data, 0644)
}

// loadSettings loads the settings from settings.json, creating it with defaults if it doesn't exist or is corrupt.
func loadSettings() {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settingsPath := filepath.Join(configDir, settingsFile)
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		settings = defaultSettings()
		if os.IsNotExist(err) {
			log.Infof("Settings file not found at %s, creating with default values.", settingsPath)
			if err := saveSettingsLocked(); err != nil {
				log.Errorf("Failed to create default settings file: %v", err)
			}
		} else {
			log.Warnf("Failed to read settings file: %v. Loading default settings.", err)
		}
		return
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warnf("Failed to parse settings file, please check its format. Loading default settings. Error: %v", err)
		settings = defaultSettings()
		return
	}

	settings = loaded.normalize()
	log.Info("Successfully loaded settings from settings.json")
}
