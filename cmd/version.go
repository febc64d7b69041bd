// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"

	"agentfit/cli/internal/backend"
	"agentfit/cli/internal/httperrors"
	"agentfit/cli/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI and API version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// printVersion prints the CLI version and the version reported by the platform API.
func printVersion(ctx context.Context) error {
	be := backend.NewHTTP(cfg.API.BaseURL, cfg.API.Token, cfg.HTTP.Timeout, logger)
	apiVersion, err := be.GetVersion(ctx)
	if err != nil {
		logger.Debug("api version lookup failed", zap.String("error", logging.Mask(err.Error())))
		httperrors.Present(err, "checking the API version", cfg.API.BaseURL)
		apiVersion = "unreachable"
	}
	fmt.Printf("agentfit %s\napi %s\n", Version, apiVersion)
	return nil
}
