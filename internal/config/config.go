package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that decodes from strings like "5s" or "30m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", string(text))
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type GoalConfig struct {
	Text       string   `toml:"text"`
	WarnWithin Duration `toml:"warn_within"`
	Notify     *bool    `toml:"notify"`
}

type StoreConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type DBusConfig struct {
	System bool `toml:"system"`
}

type Config struct {
	Instance        string        `toml:"instance"`
	Timezone        string        `toml:"timezone"`
	Debug           bool          `toml:"debug"`
	TickInterval    Duration      `toml:"tick_interval"`
	IdleCutoff      Duration      `toml:"idle_cutoff"`
	SessionGap      Duration      `toml:"session_gap"`
	StreakThreshold Duration      `toml:"streak_threshold"`
	StaleAfter      Duration      `toml:"stale_after"`
	FlushTimeout    Duration      `toml:"flush_timeout"`
	Goal            GoalConfig    `toml:"goal"`
	Store           StoreConfig   `toml:"store"`
	Metrics         MetricsConfig `toml:"metrics"`
	DBus            DBusConfig    `toml:"dbus"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// SetDefault fills every unset value with the built-in default.
func (c *Config) SetDefault() {
	if c.TickInterval == 0 {
		c.TickInterval = Duration(5 * time.Second)
	}
	if c.IdleCutoff == 0 {
		c.IdleCutoff = Duration(60 * time.Second)
	}
	if c.SessionGap == 0 {
		c.SessionGap = Duration(30 * time.Minute)
	}
	if c.StreakThreshold == 0 {
		c.StreakThreshold = Duration(120 * time.Second)
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = Duration(3 * c.TickInterval.Std())
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = Duration(2 * time.Second)
	}
	if c.Goal.WarnWithin == 0 {
		c.Goal.WarnWithin = Duration(48 * time.Hour)
	}
	if c.Goal.Notify == nil {
		defaultVal := false
		c.Goal.Notify = &defaultVal
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Path == "" {
		name := "ledger.json"
		if c.Store.Backend == BackendSQLite {
			name = "ledger.db"
		}
		c.Store.Path = filepath.Join(stateDir(c.DBus.System), name)
	}
	if c.Store.Addr == "" {
		c.Store.Addr = "localhost:6379"
	}
	if c.Store.Prefix == "" {
		c.Store.Prefix = "activityledger:"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9477"
	}
}

// stateDir is /var/lib/activityledger for a system daemon and the user's
// XDG state directory otherwise.
func stateDir(system bool) string {
	const systemDir = "/var/lib/activityledger"
	if system {
		return systemDir
	}
	if dir := os.Getenv("XDG_STATE_HOME"); filepath.IsAbs(dir) {
		return filepath.Join(dir, "activityledger")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return systemDir
	}
	return filepath.Join(home, ".local", "state", "activityledger")
}

// Validate reports configuration that the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendRedis, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.TickInterval.Std() < time.Second {
		return fmt.Errorf("tick_interval %s is below one second", c.TickInterval.Std())
	}
	if c.StaleAfter.Std() < c.TickInterval.Std() {
		return fmt.Errorf("stale_after %s must be at least tick_interval %s", c.StaleAfter.Std(), c.TickInterval.Std())
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone. An empty timezone means local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadConfigFromFile reads a TOML config. A missing file yields the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			config := &Config{}
			config.SetDefault()
			return config, nil
		}
		return nil, err
	}
	defer file.Close()
	decoder := toml.NewDecoder(file)
	var config Config
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	config.SetDefault()
	return &config, nil
}

func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.SetDefault()
	return &config, nil
}
