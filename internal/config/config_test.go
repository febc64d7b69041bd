package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperr "agentfit/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	return root
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	root := isolate(t)

	cfg, err := Load(LoadOptions{ConfigPath: filepath.Join(root, "missing.json")})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ExecutorSQL, cfg.Executor)
	assert.Equal(t, "public", cfg.DB.Schema)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.True(t, cfg.Defaults.DryRun)
	assert.True(t, cfg.Defaults.ContinueOnFailure)
	assert.Equal(t, filepath.Join(root, "state", "agentfit", "history.db"), cfg.History.Path)
}

func TestLoadPrecedence(t *testing.T) {
	root := isolate(t)
	p := filepath.Join(root, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"executor":"http","api":{"base_url":"http://file"},"suites_root":"packs"}`), 0o600))
	t.Setenv("AGENTFIT_API_BASE_URL", "http://env")

	cfg, err := Load(LoadOptions{
		ConfigPath:    p,
		FlagOverrides: map[string]any{"suites_root": "from-flag"},
	})
	require.NoError(t, err)

	assert.Equal(t, ExecutorHTTP, cfg.Executor, "file beats defaults")
	assert.Equal(t, "http://env", cfg.API.BaseURL, "env beats file")
	assert.Equal(t, "from-flag", cfg.SuitesRoot, "flags beat everything")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown executor", func(c *Config) { c.Executor = "grpc" }, false},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, false},
		{"blank root", func(c *Config) { c.SuitesRoot = "  " }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := Validate(c)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.ConfigError, apperr.KindOf(err))
		})
	}
}

func TestSaveToStripsSecrets(t *testing.T) {
	root := isolate(t)
	p := filepath.Join(root, "out.json")
	c := DefaultConfig()
	c.DB.DSN = "postgres://u:p@h/db"
	c.API.Token = "secret"

	require.NoError(t, SaveTo(p, c))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "postgres://")
	assert.NotContains(t, string(data), "secret")

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
