// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"agentfit/cli/internal/keychain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// disconnectCmd removes the stored DSN and API token.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the saved database connection and API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			pterm.Error.Println("Secure storage is not available on this system")
			return err
		}
		if err := km.ClearAll(); err != nil {
			return err
		}
		pterm.Success.Println("Saved connection and token have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
