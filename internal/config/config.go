// Package config loads client configuration from file, environment, and
// flags via viper, with hot reload of the tunable settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all client settings.
type Config struct {
	// ServerURL is the base URL of the remote product API.
	ServerURL string `mapstructure:"server_url"`

	// DataDir holds the record store database and the session file.
	DataDir string `mapstructure:"data_dir"`

	// DashboardAddr is the listen address for the daemon's live feed
	// ("" disables the dashboard).
	DashboardAddr string `mapstructure:"dashboard_addr"`

	// SyncInterval between periodic background reconcile runs.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// SyncBackoffBase is the first retry delay after a failed run.
	SyncBackoffBase time.Duration `mapstructure:"sync_backoff_base"`

	// SyncMaxRetries bounds backoff retries per failed run.
	SyncMaxRetries uint64 `mapstructure:"sync_max_retries"`

	// MaxPushAttempts parks a record after this many consecutive failed
	// pushes until the next local edit (0 = retry forever).
	MaxPushAttempts int `mapstructure:"max_push_attempts"`

	// ProbeInterval between connectivity checks.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// UploadTimeout is the end-to-end bound for one image upload.
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogFile receives rotated JSON logs in daemon mode ("" = stderr only).
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration. cfgFile may be empty, in which case
// $HOME/.remarket/config.yaml is used when present. Environment variables
// with the REMARKET_ prefix override file values.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultDir := filepath.Join(home, ".remarket")

	v.SetDefault("server_url", "http://localhost:9364")
	v.SetDefault("data_dir", defaultDir)
	v.SetDefault("dashboard_addr", "")
	v.SetDefault("sync_interval", 6*time.Hour)
	v.SetDefault("sync_backoff_base", 30*time.Second)
	v.SetDefault("sync_max_retries", 5)
	v.SetDefault("max_push_attempts", 10)
	v.SetDefault("probe_interval", 15*time.Second)
	v.SetDefault("upload_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("REMARKET")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, v, nil
}

// Watch re-reads the config file on change and invokes onChange with the
// fresh snapshot. Intended for daemon mode, where sync interval and log
// level can be adjusted without a restart.
func Watch(v *viper.Viper, onChange func(*Config)) {
	var mu sync.Mutex
	v.OnConfigChange(func(_ fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// DBPath returns the record store database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "products.db")
}
