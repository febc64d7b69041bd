// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for agentfit. It wires the
// configuration, logger, catalog and executors into the suite orchestrator
// and renders results on the terminal using the Cobra CLI framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"agentfit/cli/internal/config"
	"agentfit/cli/internal/keychain"
	"agentfit/cli/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	showVersion bool
	configPath  string
	verbose     bool
	logLevel    string

	// cfg and logger are built once in PersistentPreRunE.
	cfg    config.Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agentfit",
	Short: "Fitness tests for agents that read and write platform data",
	Long: `agentfit runs suites of natural-language scenarios, lifecycle packs and API
journeys against a platform database or REST API, and reports every issue it
finds with a classification.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("log-level") {
			overrides["log_level"] = logLevel
		}
		var err error
		cfg, err = config.Load(config.LoadOptions{ConfigPath: configPath, FlagOverrides: overrides})
		if err != nil {
			return err
		}
		logger, err = logging.NewLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		loadSecrets()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			return printVersion(cmd.Context())
		}
		return cmd.Help()
	},
}

// loadSecrets fills the DSN and API token from the OS keychain when neither
// the config file nor the environment provided them.
func loadSecrets() {
	if strings.TrimSpace(cfg.DB.DSN) != "" && strings.TrimSpace(cfg.API.Token) != "" {
		return
	}
	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable", zap.Error(err))
		return
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		if v, err := km.LoadDBDSN(); err == nil {
			cfg.DB.DSN = v
		} else if !errors.Is(err, keychain.ErrNotFound) {
			logger.Debug("load dsn from keychain", zap.Error(err))
		}
	}
	if strings.TrimSpace(cfg.API.Token) == "" {
		if v, err := km.LoadAPIToken(); err == nil {
			cfg.API.Token = v
		} else if !errors.Is(err, keychain.ErrNotFound) {
			logger.Debug("load api token from keychain", zap.Error(err))
		}
	}
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, logging.PresentError("agentfit", err))
		os.Exit(1)
	}
}

// exitError ends the process with code without printing anything further.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI and API version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: $XDG_CONFIG_HOME/agentfit/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
