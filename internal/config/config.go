// Package config loads CLI settings from the user's config file and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config stores persistent CLI settings. Flags override these values.
type Config struct {
	Adapter    string `json:"adapter"`
	Family     string `json:"family"`
	SpeedHz    int    `json:"speed_hz"`
	XVCAddr    string `json:"xvc_addr,omitempty"`
	SerialPort string `json:"serial_port,omitempty"`
	// ProbeSerial picks one CMSIS-DAP probe when several are attached.
	ProbeSerial string `json:"probe_serial,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
}

// Environment variables consulted by ApplyEnv.
const (
	EnvAdapter    = "BIST_ADAPTER"
	EnvFamily     = "BIST_FAMILY"
	EnvSpeed      = "BIST_SPEED"
	EnvXVCAddr    = "BIST_XVC_ADDR"
	EnvSerialPort = "BIST_SERIAL_PORT"
	EnvProbe      = "BIST_PROBE_SERIAL"
	EnvLogLevel   = "BIST_LOG_LEVEL"
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Adapter:  "simulator",
		Family:   "spartan3",
		SpeedHz:  1_000_000,
		LogLevel: "warn",
	}
}

// Path returns the config file location: %APPDATA%\bistio on Windows,
// ~/.config/bistio elsewhere.
func Path() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "bistio", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bistio", "config.json"), nil
}

// Load reads the default config file, if any, then applies the environment.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults. A missing file yields Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ApplyEnv overrides fields from BIST_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAdapter); ok && v != "" {
		c.Adapter = v
	}
	if v, ok := lookup(EnvFamily); ok && v != "" {
		c.Family = v
	}
	if v, ok := lookup(EnvSpeed); ok && v != "" {
		hz, err := strconv.Atoi(v)
		if err != nil || hz <= 0 {
			return fmt.Errorf("config: %s=%q is not a positive frequency", EnvSpeed, v)
		}
		c.SpeedHz = hz
	}
	if v, ok := lookup(EnvXVCAddr); ok && v != "" {
		c.XVCAddr = v
	}
	if v, ok := lookup(EnvSerialPort); ok && v != "" {
		c.SerialPort = v
	}
	if v, ok := lookup(EnvProbe); ok && v != "" {
		c.ProbeSerial = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Level parses LogLevel. An empty level means warn.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
