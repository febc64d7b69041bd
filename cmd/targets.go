// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"

	"agentfit/cli/internal/dsn"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// targetsCmd shows what a run would talk to, with secrets redacted.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Show the configured database, API and suites root",
	Long: `The targets command displays the database connection string with the password
redacted, the API base URL with a masked token, the executor and the suites
root. It helps verify which environment a run will touch without exposing
credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database := pterm.Gray("not configured (run 'agentfit connect')")
		if raw := strings.TrimSpace(cfg.DB.DSN); raw != "" {
			if info, err := dsn.Parse(raw); err == nil {
				database = info.Redacted()
			} else {
				database = pterm.Red(err.Error())
			}
		}
		token := pterm.Gray("none")
		if cfg.API.Token != "" {
			token = maskToken(cfg.API.Token)
		}
		catalogFile := cfg.CatalogFile
		if catalogFile == "" {
			catalogFile = pterm.Gray("none")
		}
		history := pterm.Gray("disabled")
		if cfg.History.Enabled {
			history = cfg.History.Path
		}

		data := pterm.TableData{
			{"Database", database},
			{"Schema", cfg.DB.Schema},
			{"Executor", cfg.Executor},
			{"API", cfg.API.BaseURL},
			{"API token", token},
			{"Catalog file", catalogFile},
			{"Suites root", cfg.SuitesRoot},
			{"History", history},
		}
		table, err := pterm.DefaultTable.WithData(data).Srender()
		if err != nil {
			return err
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Targets")).
			WithPadding(1).
			Println(table)
		pterm.Println()
		pterm.Println("To update the connection, run: agentfit connect")
		return nil
	},
}

// maskToken keeps a short prefix so tokens can be told apart.
func maskToken(t string) string {
	if len(t) <= 8 {
		return "********"
	}
	return t[:4] + "********"
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
