// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/translator"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	translateAction   string
	translateExecute  bool
	translateDryRun   bool
	translateJSON     bool
	translateBizID    string
	translateLocation string
)

// translateCmd shows how a sentence is understood and optionally runs it.
var translateCmd = &cobra.Command{
	Use:   "translate <sentence>",
	Short: "Translate a natural-language request into a command envelope",
	Long: `The translate command runs the rule-based translator against the current catalog
and prints the inferred action, the confidence and the resulting envelope. With
--execute the envelope is sent to the configured executor. Mutations are rolled
back unless --dry-run=false is given.`,
	Example: `  agentfit translate "show 5 customers where status is active"
  agentfit translate --action insert --execute "create a tag with label vip"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		action := command.Action(strings.ToLower(translateAction))
		switch action {
		case "", command.ActionQuery, command.ActionInsert, command.ActionUpdate, command.ActionDelete:
		default:
			return apperr.Newf(apperr.ValidationError, "unknown action %q", translateAction)
		}

		target, err := openTarget(ctx, translateExecute)
		if err != nil {
			return err
		}
		defer target.close()

		res := translator.New(target.catalog, logger).Translate(strings.Join(args, " "), translator.Options{
			Action: action,
			DryRun: translateDryRun,
			Scope:  command.Scope{BizID: translateBizID, LocationID: translateLocation},
		})

		var resp *command.Response
		if translateExecute && res.Success {
			r := target.exec.Execute(ctx, *res.Request)
			resp = &r
		}

		if translateJSON {
			out := struct {
				Translation translator.Result `json:"translation"`
				Response    *command.Response `json:"response,omitempty"`
			}{res, resp}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		} else if err := printTranslation(res, resp); err != nil {
			return err
		}

		if !res.Success || (resp != nil && !resp.Success) {
			return exitError{code: 1}
		}
		return nil
	},
}

func printTranslation(res translator.Result, resp *command.Response) error {
	data := pterm.TableData{
		{"Action", string(res.Inferred.Action)},
		{"Table", res.Inferred.Table},
		{"Confidence", fmt.Sprintf("%.2f", res.Confidence)},
	}
	if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
		return err
	}
	for _, n := range res.Notes {
		pterm.Info.Println(n)
	}
	if !res.Success {
		if res.Error == nil {
			return nil
		}
		pterm.Error.Println(res.Error.Message)
		if len(res.Error.Suggestions) > 0 {
			pterm.Println("Did you mean: " + strings.Join(res.Error.Suggestions, ", "))
		}
		return nil
	}

	b, err := json.MarshalIndent(res.Request, "", "  ")
	if err != nil {
		return err
	}
	pterm.DefaultSection.Println("Envelope")
	pterm.Println(string(b))

	if resp == nil {
		return nil
	}
	pterm.DefaultSection.Println("Response")
	if !resp.Success {
		pterm.Error.Println(resp.Error)
		return nil
	}
	b, err = json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return err
	}
	pterm.Println(string(b))
	for _, t := range resp.Trace {
		pterm.Debug.Printf("%s %s: %d row(s) in %dms\n", t.Action, t.Table, t.Rows, t.DurationMs)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)
	f := translateCmd.Flags()
	f.StringVar(&translateAction, "action", "", "Force the action (query, insert, update, delete)")
	f.BoolVar(&translateExecute, "execute", false, "Send the envelope to the configured executor")
	f.BoolVar(&translateDryRun, "dry-run", true, "Roll back mutations when executing")
	f.BoolVar(&translateJSON, "json", false, "Print the translation as JSON")
	f.StringVar(&translateBizID, "biz-id", "", "Business scope of the request")
	f.StringVar(&translateLocation, "location-id", "", "Location scope of the request")
}
