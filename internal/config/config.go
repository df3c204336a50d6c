// Package config loads the server's runtime configuration from a YAML
// file, applies environment-variable overrides, and watches the file for
// edits so an operator can push most settings without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/starhold/server/internal/logger"
)

// Config is the full set of server-tunable parameters (SPEC_FULL.md
// ambient-stack configuration section).
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	TickRateMin float64 `yaml:"tick_rate_min"` // seconds, clamp floor (spec.md §4.3)
	TickRateMax float64 `yaml:"tick_rate_max"` // seconds, clamp ceiling

	SessionTTLSeconds float64 `yaml:"session_ttl_seconds"`

	CommandQueueCapacity int `yaml:"command_queue_capacity"`
	FrameSizeLimitBytes  int `yaml:"frame_size_limit_bytes"`

	AssetBundleRoot string `yaml:"asset_bundle_root"`

	ServiceAuthSecret string `yaml:"service_auth_secret"`
	BcryptCost        int    `yaml:"bcrypt_cost"`

	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`

	AccountsDBPath string `yaml:"accounts_db_path"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the configuration applied before any file or
// environment override, matching spec.md's stated defaults.
func Default() *Config {
	return &Config{
		ListenAddr:           ":8080",
		TickRateMin:          1.0 / 60.0,
		TickRateMax:          1.0 / 20.0,
		SessionTTLSeconds:    15,
		CommandQueueCapacity: 1000,
		FrameSizeLimitBytes:  64 * 1024,
		AssetBundleRoot:      "./assets",
		BcryptCost:           10,
		RateLimitPerSecond:   20,
		RateLimitBurst:       40,
		AccountsDBPath:       "./starhold.db",
		LogLevel:             "info",
	}
}

// Manager owns the active configuration and reloads it when the backing
// file changes on disk.
type Manager struct {
	path    string
	current *Config
	watcher *fsnotify.Watcher
}

// NewManager loads path (falling back to Default() if it does not
// exist), applies environment overrides, and returns a Manager ready to
// serve Get() and, optionally, Watch().
func NewManager(path string) (*Manager, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	return &Manager{path: path, current: cfg}, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STARHOLD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("STARHOLD_SERVICE_AUTH_SECRET"); v != "" {
		cfg.ServiceAuthSecret = v
	}
	if v := os.Getenv("STARHOLD_ACCOUNTS_DB_PATH"); v != "" {
		cfg.AccountsDBPath = v
	}
	if v := os.Getenv("STARHOLD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STARHOLD_SESSION_TTL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SessionTTLSeconds = f
		}
	}
}

// Get returns the currently active configuration. Callers must not
// mutate the returned value.
func (m *Manager) Get() *Config {
	return m.current
}

// Watch starts an fsnotify watch on the backing file and hot-reloads
// Get()'s value on every write event, until stop is closed. Parse
// failures are logged and the previous configuration is kept, so a
// typo in a running edit never takes the server down.
func (m *Manager) Watch(stop <-chan struct{}) error {
	if m.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	if err := w.Add(m.path); err != nil {
		w.Close()
		return fmt.Errorf("config: watch %s: %w", m.path, err)
	}
	m.watcher = w

	go func() {
		defer w.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					debounce = time.After(100 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				m.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "err", err)
			}
		}
	}()
	return nil
}

func (m *Manager) reload() {
	next := Default()
	if err := loadYAML(m.path, next); err != nil {
		logger.Warn("config reload failed, keeping previous configuration", "err", err)
		return
	}
	applyEnvOverrides(next)
	m.current = next
	logger.Info("configuration reloaded", "path", m.path)
}
