package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	// Address is the free-form location string sent to the timetable source
	// (e.g. "1600 Amphitheatre Parkway, Mountain View, CA"). It is opaque to
	// the scheduling core and re-read at the start of every fetch cycle, so
	// editing the config file takes effect on the next cycle.
	Address string `yaml:"address" json:"address"`

	// Timezone is an IANA timezone name used for display formatting in the
	// -once dump and the ICS export. Empty means the process-local zone; the
	// event instants themselves are timezone-aware regardless.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Method is the Al Adhan calculation method id (0 lets the source pick
	// its default for the resolved location).
	Method int `yaml:"method" json:"method"`

	// School selects the asr juristic school (0 = Shafi, 1 = Hanafi).
	School int `yaml:"school" json:"school"`

	// RefreshCron is a cron-style schedule (e.g. "0 3 * * *") for the safety
	// refresh. The scheduler normally re-fires itself at each event boundary;
	// this job only exists so a failed or exhausted cycle does not strand the
	// daemon until someone hits the manual refresh endpoint.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// APIBaseURL is the timetable source endpoint. Overridable for tests and
	// self-hosted mirrors.
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Address:     "Mecca, Saudi Arabia",
		Timezone:    "",
		Method:      0,
		School:      0,
		RefreshCron: "0 3 * * *",
		APIBaseURL:  "https://api.aladhan.com",
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Address == "" {
		c.Address = "Mecca, Saudi Arabia"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 3 * * *"
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.aladhan.com"
	}
	if c.Method < 0 {
		c.Method = 0
	}
	if c.School != 0 && c.School != 1 {
		c.School = 0
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".athand-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
