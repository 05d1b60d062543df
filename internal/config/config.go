package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for shelf.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level,omitempty"` // lowest level echoed to stderr; the log file gets everything
	Database   DatabaseConfig   `toml:"database"`
	Blobs      BlobsConfig      `toml:"blobs"`
	Thumbnails ThumbnailsConfig `toml:"thumbnails"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// DatabaseConfig represents configuration for the library database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BlobsConfig represents configuration for the poster image store.
type BlobsConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// ThumbnailsConfig selects how posters and durations are captured.
type ThumbnailsConfig struct {
	Type        string  `toml:"type"` // "ffmpeg" or "none"
	FFmpegPath  string  `toml:"ffmpeg_path,omitempty"`
	FFprobePath string  `toml:"ffprobe_path,omitempty"`
	MaxWidth    int     `toml:"max_width,omitempty"`  // posters wider than this are downscaled; 0 keeps the frame size
	OffsetSec   float64 `toml:"offset_sec,omitempty"` // capture position; 0 means the built-in default
}

// FilesystemConfig holds file access settings.
type FilesystemConfig struct {
	// Mode is "persistent" (store file paths as durable handles) or
	// "picker" (never store handles; sources live only for the session).
	Mode             string   `toml:"mode"`
	Ignore           []string `toml:"ignore"`
	HashFingerprints bool     `toml:"hash_fingerprints"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Blobs: BlobsConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "blobs"),
		},
		Thumbnails: ThumbnailsConfig{
			Type:        "ffmpeg",
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			MaxWidth:    640,
			OffsetSec:   3,
		},
		Filesystem: FilesystemConfig{
			Mode:   "persistent",
			Ignore: []string{".*"},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
