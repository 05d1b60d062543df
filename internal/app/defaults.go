package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
//
// Config file: $SHELF_CONFIG_PATH, else $XDG_CONFIG_HOME/shelf.toml, else ~/.config/shelf.toml.
// Library data: $SHELF_HOME, else $XDG_DATA_HOME/shelf, else ~/.local/share/shelf.
func GetDefaults() (map[string]string, error) {
	configPath, err := envPath("SHELF_CONFIG_PATH", "XDG_CONFIG_HOME", "shelf.toml", ".config")
	if err != nil {
		return nil, err
	}

	baseDir, err := envPath("SHELF_HOME", "XDG_DATA_HOME", "shelf", ".local", "share")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// envPath resolves a location from an explicit override, then an XDG base
// directory, then a path under the home directory.
func envPath(override, xdgVar, name string, homeParts ...string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if base := os.Getenv(xdgVar); filepath.IsAbs(base) {
		return filepath.Join(base, name), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	parts := append([]string{homeDir}, homeParts...)
	return filepath.Join(append(parts, name)...), nil
}
