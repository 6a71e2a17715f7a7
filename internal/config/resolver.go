package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
)

// EnvConfigPath names the variable that overrides the config location.
const EnvConfigPath = "SANDY_CONFIG"

// Resolve returns a sorted list of module IDs from the configuration.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResolvePath picks the config file: explicit flag, then $SANDY_CONFIG,
// then $XDG_CONFIG_HOME/sandy/sandy.yaml, then ./sandy.yaml.
func ResolvePath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	candidates := []string{}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "sandy", "sandy.yaml"))
	}
	candidates = append(candidates, "sandy.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.New("config: no configuration file found (use -c, $SANDY_CONFIG, or run `sandy init`)")
}
