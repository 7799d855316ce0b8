package update

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// DefaultURL is where the catalog is published.
	DefaultURL = "https://stellarium.org/json/showers.json"
	// DefaultFrequencyHours is the default interval between periodic checks.
	DefaultFrequencyHours = 72
)

// ConfigError reports an unreadable or invalid settings file. Callers log it
// and continue with defaults.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("meteor showers settings %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Settings is the persisted update and display configuration.
type Settings struct {
	Enabled         bool      `toml:"enabled"`
	FrequencyHours  int       `toml:"frequency_hours"`
	LastUpdate      time.Time `toml:"last_update"`
	URL             string    `toml:"url"`
	ShowMeteors     bool      `toml:"show_meteors"`
	EnableAtStartup bool      `toml:"enable_at_startup"`
	DiscardBackup   bool      `toml:"discard_backup"`
}

// legacySettings carries keys written by older releases.
type legacySettings struct {
	UpdateFrequencyDays int `toml:"update_frequency_days"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         true,
		FrequencyHours:  DefaultFrequencyHours,
		LastUpdate:      time.Date(2012, 5, 24, 12, 0, 0, 0, time.UTC),
		URL:             DefaultURL,
		ShowMeteors:     true,
		EnableAtStartup: true,
	}
}

// Frequency returns the periodic check interval.
func (s Settings) Frequency() time.Duration {
	return time.Duration(s.FrequencyHours) * time.Hour
}

// Validate checks the values a coordinator relies on.
func (s Settings) Validate() error {
	if s.FrequencyHours <= 0 {
		return fmt.Errorf("frequency_hours must be positive, got %d", s.FrequencyHours)
	}
	if s.URL == "" {
		return errors.New("url must not be empty")
	}
	return nil
}

// LoadSettings reads the settings file at path. A missing file yields the
// defaults and no error. An unreadable or invalid file yields the defaults
// together with a *ConfigError. Keys absent from the file keep their default
// values, and the legacy update_frequency_days key is migrated to hours.
func LoadSettings(path string) (Settings, error) {
	defaults := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, &ConfigError{Path: path, Err: err}
	}

	s := defaults
	s.FrequencyHours = 0
	if err := toml.Unmarshal(data, &s); err != nil {
		return defaults, &ConfigError{Path: path, Err: err}
	}
	if s.FrequencyHours == 0 {
		var legacy legacySettings
		if err := toml.Unmarshal(data, &legacy); err == nil && legacy.UpdateFrequencyDays > 0 {
			s.FrequencyHours = legacy.UpdateFrequencyDays * 24
		} else {
			s.FrequencyHours = defaults.FrequencyHours
		}
	}
	if err := s.Validate(); err != nil {
		return defaults, &ConfigError{Path: path, Err: err}
	}
	return s, nil
}

// SaveSettings writes the settings file atomically (write temp + rename).
func SaveSettings(path string, s Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming settings file: %w", err)
	}
	return nil
}
