package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataDir returns the tinyclaw data directory: ~/.tinyclaw.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tinyclaw"
	}
	return filepath.Join(home, ".tinyclaw")
}

// ConfigPath returns the first existing config file under DataDir, trying
// config.yaml, config.yml, config.json in order. When none exists, the
// yaml path is returned so a fresh install has a well-known location.
func ConfigPath() string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		p := filepath.Join(DataDir(), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(DataDir(), "config.yaml")
}

// Load reads and parses the config file at path (ConfigPath() when empty).
// A missing file yields the defaults; a malformed file is a fatal error —
// the caller is expected to abort startup.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	return &cfg, nil
}

// Save writes cfg back to path (ConfigPath() when empty) in the format the
// extension selects.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
