package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantBase   string
	}{
		{
			name:       "explicit overrides win",
			env:        map[string]string{"SHELF_CONFIG_PATH": "/custom/config.toml", "SHELF_HOME": "/custom/shelf", "XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			wantConfig: "/custom/config.toml",
			wantBase:   "/custom/shelf",
		},
		{
			name:       "xdg base directories",
			env:        map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			wantConfig: "/xdg/config/shelf.toml",
			wantBase:   "/xdg/data/shelf",
		},
		{
			name:       "relative xdg paths are ignored",
			env:        map[string]string{"XDG_CONFIG_HOME": "rel/config", "XDG_DATA_HOME": "rel/data"},
			wantConfig: filepath.Join(homeDir, ".config", "shelf.toml"),
			wantBase:   filepath.Join(homeDir, ".local", "share", "shelf"),
		},
		{
			name:       "falls back to home dir",
			wantConfig: filepath.Join(homeDir, ".config", "shelf.toml"),
			wantBase:   filepath.Join(homeDir, ".local", "share", "shelf"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"SHELF_CONFIG_PATH", "SHELF_HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME"} {
				t.Setenv(key, tt.env[key])
			}

			defaults, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}

			if defaults["config_path"] != tt.wantConfig {
				t.Errorf("config_path = %q, want %q", defaults["config_path"], tt.wantConfig)
			}
			if defaults["base_dir"] != tt.wantBase {
				t.Errorf("base_dir = %q, want %q", defaults["base_dir"], tt.wantBase)
			}
			if want := filepath.Join(tt.wantBase, "log"); defaults["log_dir"] != want {
				t.Errorf("log_dir = %q, want %q", defaults["log_dir"], want)
			}
		})
	}
}
