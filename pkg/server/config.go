package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/textconf/pkg/credstore"
)

// Config holds server configuration.
type Config struct {
	ListenAddr         string        `yaml:"listen_addr"`          // TCP bind address (e.g. ":5000")
	HTTPAddr           string        `yaml:"http_addr"`            // /metrics, /healthz and /ws (empty = disabled)
	CredentialsPath    string        `yaml:"credentials_path"`     // login file or SQLite database
	CredentialsBackend string        `yaml:"credentials_backend"`  // "file", "sqlite" or "memory"
	SessionCapacity    int           `yaml:"session_capacity"`     // members per session
	IdleTimeout        time.Duration `yaml:"idle_timeout"`         // 0 disables
	WriteTimeout       time.Duration `yaml:"write_timeout"`        // per-frame write deadline, 0 disables
	AllowedOrigins     []string      `yaml:"allowed_origins"`      // browser origins allowed on /ws
	MetricsLogInterval time.Duration `yaml:"metrics_log_interval"` // 0 disables periodic metrics logs

	// CLI-only actions (run and exit)
	ExportUsers bool `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:         ":5000",
		CredentialsPath:    "login.txt",
		CredentialsBackend: credstore.BackendFile,
		SessionCapacity:    20,
		WriteTimeout:       5 * time.Second,
		MetricsLogInterval: 60 * time.Second,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Keys missing from
// the file keep their current values; unknown keys are an error.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return fmt.Errorf("server: read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("server: parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("server: listen address is required")
	}
	if c.SessionCapacity < 1 {
		return fmt.Errorf("server: session capacity must be at least 1, got %d", c.SessionCapacity)
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 || c.MetricsLogInterval < 0 {
		return errors.New("server: timeouts and intervals must not be negative")
	}
	return nil
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	Username string `yaml:"username"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all registered usernames as YAML. Passwords are not
// included.
func ExportUsersYAML(st credstore.Store) ([]byte, error) {
	creds, err := st.List()
	if err != nil {
		return nil, err
	}

	export := UsersExport{Users: []UserYAML{}}
	for _, c := range creds {
		export.Users = append(export.Users, UserYAML{Username: c.Username})
	}
	return yaml.Marshal(&export)
}
