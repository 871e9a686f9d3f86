// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/resmon/internal/constants"
	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/safe"
)

// Loader handles loading and saving configuration files.
type Loader struct {
	path     string
	explicit bool
}

// NewLoader creates a new config loader.
// The file is resolved in this order:
//  1. path, when non-empty (the --config flag).
//  2. RESMON_CONFIG environment variable.
//  3. ~/.resmon/config.yaml of the operator (the sudo user when elevated).
//
// An explicitly named file must exist; the default location may be absent.
func NewLoader(path string) *Loader {
	if path != "" {
		return &Loader{path: path, explicit: true}
	}
	if env := os.Getenv(constants.ConfigEnvVar); env != "" {
		return &Loader{path: env, explicit: true}
	}

	home, err := privilege.HomeDir()
	if err != nil {
		// No home directory (minimal containers): defaults plus env only.
		return &Loader{}
	}
	return &Loader{path: filepath.Join(home, constants.DefaultDir, constants.ConfigFile)}
}

// Path returns the resolved config file path, or "" when none applies.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the config file over the defaults and applies environment
// overrides. It does not validate; callers validate after applying flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.path != "" {
		data, err := safe.ReadFile(l.path, &safe.ReadOptions{AllowSymlinks: true})
		switch {
		case errors.Is(err, fs.ErrNotExist) && !l.explicit:
			// No default file: built-in defaults apply.
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
			}
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as YAML to the loader's path, creating the directory.
// Under sudo the directory and file are handed back to the operator.
func (l *Loader) Save(cfg *Config) error {
	if l.path == "" {
		return fmt.Errorf("no config path available")
	}

	dir := filepath.Dir(l.path)
	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: config holds no secrets
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := privilege.FixFileOwnership(dir); err != nil {
		return fmt.Errorf("failed to fix config directory ownership: %w", err)
	}
	if err := privilege.FixFileOwnership(l.path); err != nil {
		return fmt.Errorf("failed to fix config ownership: %w", err)
	}

	return nil
}
