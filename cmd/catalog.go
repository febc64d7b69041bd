// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentfit/cli/internal/catalog"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var catalogJSON bool

// catalogCmd prints the tables the translator can resolve.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the table catalog used for translation",
	Long: `The catalog command loads the catalog the same way run does, from the
connected database with catalog_file applied as an alias overlay, or from
catalog_file alone, and prints every table with its columns and aliases.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := openTarget(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer target.close()

		names := target.catalog.Tables()
		tables := make([]catalog.TableInfo, 0, len(names))
		for _, n := range names {
			if t, ok := target.catalog.Table(n); ok {
				tables = append(tables, t)
			}
		}

		if catalogJSON {
			b, err := json.MarshalIndent(catalog.File{Tables: tables}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		data := pterm.TableData{{"Table", "Columns", "Aliases", "Enums"}}
		for _, t := range tables {
			data = append(data, []string{t.Name, strings.Join(t.Columns, ", "), strings.Join(t.Aliases, ", "), fmt.Sprint(len(t.EnumValues))})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print the catalog in catalog file format")
}
