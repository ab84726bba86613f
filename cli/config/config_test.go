package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GeneratorTimeout)
	assert.Equal(t, "es2020", cfg.Target)
	assert.Equal(t, LogFormatConsole, cfg.LogFormat)
	assert.Empty(t, cfg.NodePath)
	assert.False(t, cfg.Debug)
}

func TestLoad_File(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "pkgkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`generator_timeout: 5s
monorepo_root: /work/repo
target: es2022
log_format: json
debug: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.GeneratorTimeout)
	assert.Equal(t, "/work/repo", cfg.MonorepoRoot)
	assert.Equal(t, "es2022", cfg.Target)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.True(t, cfg.Debug)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("PKGKIT_TARGET", "esnext")
	t.Setenv("PKGKIT_GENERATOR_TIMEOUT", "1m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "esnext", cfg.Target)
	assert.Equal(t, time.Minute, cfg.GeneratorTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	resetViper(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	resetViper(t)
	t.Setenv("PKGKIT_LOG_FORMAT", "xml")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{GeneratorTimeout: time.Second, Target: "es2020", LogFormat: LogFormatConsole}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.GeneratorTimeout = 0 }, wantErr: "generator_timeout must be positive"},
		{name: "unknown target", mutate: func(c *Config) { c.Target = "es3" }, wantErr: "unknown target"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "missing node", mutate: func(c *Config) { c.NodePath = "/nonexistent/node" }, wantErr: "node_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
