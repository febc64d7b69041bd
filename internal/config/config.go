// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are written back; secrets go to the OS keychain and
// are read here only from the environment or an explicit config file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/xdg"

	"github.com/spf13/viper"
)

// Executor names accepted by the executor setting.
const (
	ExecutorSQL  = "sql"
	ExecutorHTTP = "http"
)

// Config holds the effective CLI settings. It is built once at process start
// and passed explicitly to every component that needs it.
type Config struct {
	LogLevel     string         `json:"log_level" mapstructure:"log_level"`
	SuitesRoot   string         `json:"suites_root" mapstructure:"suites_root"`
	WorkspaceDir string         `json:"workspace_dir" mapstructure:"workspace_dir"`
	Executor     string         `json:"executor" mapstructure:"executor"`
	CatalogFile  string         `json:"catalog_file" mapstructure:"catalog_file"`
	DB           DBConfig       `json:"db" mapstructure:"db"`
	API          APIConfig      `json:"api" mapstructure:"api"`
	HTTP         HTTPConfig     `json:"http" mapstructure:"http"`
	History      HistoryConfig  `json:"history" mapstructure:"history"`
	Defaults     DefaultsConfig `json:"defaults" mapstructure:"defaults"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	DSN    string `json:"dsn,omitempty" mapstructure:"dsn"`
	Schema string `json:"schema" mapstructure:"schema"`
}

// APIConfig points at the platform REST API exercised by journeys and the HTTP executor.
type APIConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Token   string `json:"token,omitempty" mapstructure:"token"`
}

// HTTPConfig tunes outbound HTTP calls.
type HTTPConfig struct {
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// HistoryConfig controls the local run history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// DefaultsConfig holds run-level defaults applied when a run request omits them.
type DefaultsConfig struct {
	DryRun            bool `json:"dry_run" mapstructure:"dry_run"`
	ContinueOnFailure bool `json:"continue_on_failure" mapstructure:"continue_on_failure"`
}

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath overrides the XDG config file location.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		SuitesRoot: "fitness",
		Executor:   ExecutorSQL,
		DB:         DBConfig{Schema: "public"},
		API:        APIConfig{BaseURL: "http://localhost:3000"},
		HTTP:       HTTPConfig{Timeout: 10 * time.Second},
		History:    HistoryConfig{Enabled: true},
		Defaults:   DefaultsConfig{DryRun: true, ContinueOnFailure: true},
	}
}

// Load returns the effective configuration after applying precedence:
// defaults < config file < env (AGENTFIT_*) < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	p := opts.ConfigPath
	if p == "" {
		var err error
		if p, err = path(); err != nil {
			return Config{}, err
		}
	}
	if err := mergeConfigFile(v, p); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix("AGENTFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.History.Path == "" {
		if dir, err := xdg.StateDir(); err == nil {
			cfg.History.Path = filepath.Join(dir, "history.db")
		}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("suites_root", def.SuitesRoot)
	v.SetDefault("workspace_dir", def.WorkspaceDir)
	v.SetDefault("executor", def.Executor)
	v.SetDefault("catalog_file", def.CatalogFile)

	v.SetDefault("db.dsn", def.DB.DSN)
	v.SetDefault("db.schema", def.DB.Schema)

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.token", def.API.Token)

	v.SetDefault("http.timeout", def.HTTP.Timeout)

	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.path", def.History.Path)

	v.SetDefault("defaults.dry_run", def.Defaults.DryRun)
	v.SetDefault("defaults.continue_on_failure", def.Defaults.ContinueOnFailure)
}

// mergeConfigFile merges the config file if it exists.
func mergeConfigFile(v *viper.Viper, p string) error {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", p)
	}
	v.SetConfigFile(p)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", p, err)
	}
	return nil
}

// Validate rejects settings no component can act on.
func Validate(c Config) error {
	switch c.Executor {
	case ExecutorSQL, ExecutorHTTP:
	default:
		return apperr.Newf(apperr.ConfigError, "unknown executor %q (want %s or %s)", c.Executor, ExecutorSQL, ExecutorHTTP)
	}
	if c.HTTP.Timeout <= 0 {
		return apperr.Newf(apperr.ConfigError, "http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if strings.TrimSpace(c.SuitesRoot) == "" {
		return apperr.New(apperr.ConfigError, "suites_root must not be empty")
	}
	return nil
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Save writes the non-secret part of the configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	return SaveTo(p, c)
}

// SaveTo is Save with an explicit file path.
func SaveTo(p string, c Config) error {
	c.DB.DSN = ""
	c.API.Token = ""
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
