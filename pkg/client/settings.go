package client

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings stores user preferences persisted as YAML next to the binary.
type Settings struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // dial and handshake limit
	Color          bool          `yaml:"color"`           // styled output on terminals
}

// DefaultSettings returns default settings.
func DefaultSettings() *Settings {
	return &Settings{
		ConnectTimeout: 10 * time.Second,
		Color:          true,
	}
}

// SettingsPath returns the settings file location next to the executable.
func SettingsPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(filepath.Dir(exe), "settings.yaml")
}

// LoadSettings loads settings from the YAML file at path or returns defaults.
func LoadSettings(path string) *Settings {
	s := DefaultSettings()
	data, err := os.ReadFile(path) //nolint:gosec // path chosen by the user
	if err != nil {
		return s
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		slog.Error("parse settings", "path", path, "err", err)
		return DefaultSettings()
	}
	return s
}

// Save writes settings to path as YAML.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
