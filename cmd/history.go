// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"time"

	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/history"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd lists past runs from the local history database.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fitness runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Info.Println("No runs recorded yet")
			return nil
		}
		data := pterm.TableData{{"Run ID", "Started", "Result", "Suites", "Checks", "Issues"}}
		for _, e := range entries {
			result := pterm.Green("passed")
			if !e.Success {
				result = pterm.Red("failed")
			}
			data = append(data, []string{
				e.RunID,
				e.StartedAt.Local().Format(time.DateTime),
				result,
				fmt.Sprint(e.Suites),
				fmt.Sprintf("%d/%d", e.Checks-e.ChecksFailed, e.Checks),
				fmt.Sprint(e.Issues),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// historyShowCmd prints the report or the full result of one run.
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the report of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		e, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, history.ErrNotFound) {
			pterm.Warning.Printf("No run with id %s\n", args[0])
			return exitError{code: 1}
		}
		if err != nil {
			return err
		}
		if historyJSON {
			fmt.Println(string(e.Result))
			return nil
		}
		pterm.Println(e.Report)
		return nil
	},
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, apperr.New(apperr.ConfigError, "history.path is not set")
	}
	return history.Open(cmd.Context(), cfg.History.Path)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the stored run result as JSON")
}
