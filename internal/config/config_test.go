package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	want := Default()
	want.Adapter = "xvc"
	want.XVCAddr = "10.0.0.2:2542"
	require.NoError(t, Save(path, want))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"family":"virtex"}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "virtex", cfg.Family)
	assert.Equal(t, "simulator", cfg.Adapter)
	assert.Equal(t, 1_000_000, cfg.SpeedHz)
}

func TestLoadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{adapter`), 0o644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		EnvAdapter:    "cmsisdap",
		EnvFamily:     "virtex",
		EnvSpeed:      "4000000",
		EnvSerialPort: "/dev/ttyACM0",
		EnvLogLevel:   "debug",
		EnvXVCAddr:    "",
		EnvProbe:      "E6614103E7",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Adapter:     "cmsisdap",
		Family:      "virtex",
		SpeedHz:     4_000_000,
		SerialPort:  "/dev/ttyACM0",
		ProbeSerial: "E6614103E7",
		LogLevel:    "debug",
	}, cfg)

	assert.Error(t, cfg.ApplyEnv(env(map[string]string{EnvSpeed: "fast"})))
	assert.Error(t, cfg.ApplyEnv(env(map[string]string{EnvSpeed: "-1"})))
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelWarn},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := Config{LogLevel: tt.in}.Level()
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := Config{LogLevel: "chatty"}.Level()
	assert.Error(t, err)
}

func TestLoadUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPDATA", "")
	t.Setenv(EnvFamily, "virtex")

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "bistio", "config.json"), path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "virtex", cfg.Family)
}
