// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"agentfit/cli/internal/orchestrator"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var inventoryRoot string

// inventoryCmd lists the suite files run --all would pick up.
var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "List suite files in the suites root",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := inventoryRoot
		if root == "" {
			root = cfg.SuitesRoot
		}
		entries, err := orchestrator.NewSources(root).Inventory()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Warning.Printf("No suite files found under %s\n", root)
			return nil
		}
		data := pterm.TableData{{"ID", "Kind", "File"}}
		for i, s := range orchestrator.Suites(entries) {
			data = append(data, []string{s.ID, string(s.Kind), entries[i].File})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.Flags().StringVar(&inventoryRoot, "root", "", "Suites root (default: suites_root from config)")
}
