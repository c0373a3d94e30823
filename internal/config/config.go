package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "wavelet"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	LibrarySources []string `koanf:"library_sources"` // paths to scan for music
	PageSize       int      `koanf:"page_size"`       // catalog page size (default: 100)
	MPRIS          *bool    `koanf:"mpris"`           // expose MPRIS on D-Bus (default: true)
	Control        *bool    `koanf:"control"`         // edit playlists through the running daemon (default: true)

	Playback      PlaybackConfig      `koanf:"playback"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Storage       StorageConfig       `koanf:"storage"`
	Log           LogConfig           `koanf:"log"`
}

// PlaybackConfig holds auto-advance and audio mode settings.
type PlaybackConfig struct {
	ManualAutoAdvance bool  `koanf:"manual_auto_advance"` // advance after a manually picked track ends
	WrapQueue         bool  `koanf:"wrap_queue"`          // continue at the first track after the last
	Background        *bool `koanf:"background"`          // default: true
	PlayInSilentMode  *bool `koanf:"play_in_silent_mode"` // default: true
	DuckOthers        *bool `koanf:"duck_others"`         // default: true
}

// NotificationsConfig holds now-playing notification settings.
type NotificationsConfig struct {
	Enabled        *bool  `koanf:"enabled"`          // default: true
	SplitPlayPause bool   `koanf:"split_play_pause"` // separate play and pause buttons
	DefaultAction  string `koanf:"default_action"`   // "resume" or "ignore" (default: "resume")
	TimeoutMs      int32  `koanf:"timeout_ms"`       // 0 = never expire
}

// StorageConfig selects where playlists are persisted.
type StorageConfig struct {
	Backend string      `koanf:"backend"` // "sqlite", "redis" or "memory" (default: "sqlite")
	Path    string      `koanf:"path"`    // sqlite file (default: $XDG_DATA_HOME/wavelet/wavelet.db)
	Key     string      `koanf:"key"`     // key holding the playlist collection (default: "playlists")
	Redis   RedisConfig `koanf:"redis"`
}

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Addr     string `koanf:"addr"` // default: "localhost:6379"
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"` // default: "wavelet:"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `koanf:"level"`        // debug, info, warn, error (default: info)
	File       string `koanf:"file"`         // JSON log file, empty disables it
	MaxSizeMB  int    `koanf:"max_size_mb"`  // default: 10
	MaxBackups int    `koanf:"max_backups"`  // default: 3
	MaxAgeDays int    `koanf:"max_age_days"` // default: 28
	Compress   bool   `koanf:"compress"`
}

// Load reads the user and local config files.
func Load() (*Config, error) {
	return LoadFrom(getConfigPaths()...)
}

// LoadFrom reads the given TOML files in order, later files overriding
// earlier ones. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Expand ~ in library_sources
	for i, src := range cfg.LibrarySources {
		cfg.LibrarySources[i] = expandPath(src)
	}
	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "", BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Notifications.DefaultAction {
	case "", "resume", "ignore":
	default:
		return fmt.Errorf("unknown notifications.default_action %q", c.Notifications.DefaultAction)
	}
	return nil
}

// Paths returns the config files Load reads, lowest priority first.
func Paths() []string {
	return getConfigPaths()
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/wavelet/config.toml
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetPageSize returns the catalog page size with the default applied.
func (c *Config) GetPageSize() int {
	if c.PageSize <= 0 {
		return 100
	}
	return c.PageSize
}

// MPRISEnabled reports whether the MPRIS adapter should run.
func (c *Config) MPRISEnabled() bool {
	return boolOr(c.MPRIS, true)
}

// ControlEnabled reports whether the daemon serves playlist edits on D-Bus
// and whether commands send their edits there.
func (c *Config) ControlEnabled() bool {
	return boolOr(c.Control, true)
}

// GetPlaybackConfig returns the playback configuration with defaults applied.
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	cfg := c.Playback
	cfg.Background = ptr(boolOr(cfg.Background, true))
	cfg.PlayInSilentMode = ptr(boolOr(cfg.PlayInSilentMode, true))
	cfg.DuckOthers = ptr(boolOr(cfg.DuckOthers, true))
	return cfg
}

// GetNotificationsConfig returns the notification configuration with defaults applied.
func (c *Config) GetNotificationsConfig() NotificationsConfig {
	cfg := c.Notifications
	cfg.Enabled = ptr(boolOr(cfg.Enabled, true))
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = "resume"
	}
	if cfg.TimeoutMs < 0 {
		cfg.TimeoutMs = 0
	}
	return cfg
}

// GetStorageConfig returns the storage configuration with defaults applied.
// An empty sqlite path is resolved by the store under $XDG_DATA_HOME.
func (c *Config) GetStorageConfig() StorageConfig {
	cfg := c.Storage
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if cfg.Key == "" {
		cfg.Key = "playlists"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = appName + ":"
	}
	return cfg
}

// GetLogConfig returns the log configuration with defaults applied.
func (c *Config) GetLogConfig() LogConfig {
	cfg := c.Log
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 28
	}
	return cfg
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func ptr[T any](v T) *T {
	return &v
}
