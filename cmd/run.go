// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/history"
	"agentfit/cli/internal/orchestrator"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	runRoot        string
	runRequestFile string
	runAll         bool
	runKind        string
	runDryRun      bool
	runContinue    bool
	runVars        []string
	runJSONOut     string
	runMarkdownOut string
	runAPIBaseURL  string
	runNoHistory   bool
	runJSON        bool
)

// runCmd runs fitness suites and prints the report.
var runCmd = &cobra.Command{
	Use:   "run [suite files...]",
	Short: "Run fitness suites and report issues",
	Long: `The run command executes suites through the orchestrator. Suites come from a
run request file (--request), from the files given as arguments, or from every
suite file in the suites root (--all). File names mark their kind: names with
"lifecycle" are lifecycle packs, "api-journey" are API journeys and "agent-api-"
are scenario packs. Use --kind when a file name carries no marker.

Variables passed with --var are visible to every suite as {{name}}. The command
exits with status 1 when any suite fails or any issue is reported.`,
	Example: `  agentfit run --all
  agentfit run customer-lifecycle.yaml checkout-api-journey.json --var bizId=biz_1
  agentfit run --request nightly.yaml --md-out reports/nightly.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root := runRoot
		if root == "" {
			root = cfg.SuitesRoot
		}

		req, err := buildRequest(root, args)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, &req); err != nil {
			return err
		}
		if len(req.Suites) == 0 {
			pterm.Warning.Printf("No suites found under %s\n", root)
			return nil
		}

		var target *dataTarget
		if needsData(req.Suites) {
			if target, err = openTarget(ctx, true); err != nil {
				return err
			}
			defer target.close()
		}

		opts := []orchestrator.Option{orchestrator.WithObserver(newProgress(runJSON))}
		if cfg.History.Enabled && !runNoHistory {
			store, err := history.Open(ctx, cfg.History.Path)
			if err != nil {
				logger.Warn("run history disabled", zap.Error(err))
			} else {
				defer func() { _ = store.Close() }()
				opts = append(opts, orchestrator.WithRecorder(store))
			}
		}

		orch, err := newOrchestrator(target, runSettings{
			root:              root,
			apiBaseURL:        runAPIBaseURL,
			dryRun:            cfg.Defaults.DryRun,
			continueOnFailure: cfg.Defaults.ContinueOnFailure,
		}, opts...)
		if err != nil {
			return err
		}

		run := orch.Run(ctx, req)
		if runJSON {
			b, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		} else {
			pterm.Println(run.Markdown)
			for _, a := range run.Artifacts {
				pterm.Info.Printf("Wrote %s\n", a)
			}
		}
		if !run.Summary.Success {
			return exitError{code: 1}
		}
		return nil
	},
}

// buildRequest reads --request, or builds suites from args or the inventory.
func buildRequest(root string, args []string) (orchestrator.Request, error) {
	var req orchestrator.Request
	if runRequestFile != "" {
		if len(args) > 0 || runAll {
			return req, apperr.New(apperr.ValidationError, "--request cannot be combined with suite files or --all")
		}
		return readRequest(runRequestFile)
	}
	if runAll || len(args) == 0 {
		entries, err := orchestrator.NewSources(root).Inventory()
		if err != nil {
			return req, err
		}
		req.Suites = orchestrator.Suites(entries)
		return req, nil
	}

	entries := make([]orchestrator.Entry, 0, len(args))
	for _, a := range args {
		kind := orchestrator.Kind(runKind)
		if kind == "" {
			var ok bool
			if kind, ok = orchestrator.KindOf(filepath.Base(a)); !ok {
				return req, apperr.Newf(apperr.ValidationError, "cannot tell the suite kind of %s; rename it or pass --kind", a)
			}
		}
		entries = append(entries, orchestrator.Entry{Kind: kind, File: filepath.Base(a), Path: a})
	}
	req.Suites = orchestrator.Suites(entries)
	return req, nil
}

// readRequest decodes a YAML or JSON run request.
func readRequest(path string) (orchestrator.Request, error) {
	var req orchestrator.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, apperr.Wrap(apperr.SourceLoadFailed, "read run request", err)
	}
	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return req, apperr.Wrap(apperr.SourceLoadFailed, "parse run request", err)
	}
	// Round-trip through JSON so YAML requests use the JSON field names.
	b, err := json.Marshal(doc)
	if err != nil {
		return req, apperr.Wrap(apperr.SourceLoadFailed, "parse run request", err)
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return req, apperr.Wrap(apperr.ValidationError, "invalid run request", err)
	}
	return req, nil
}

// applyRunFlags layers command-line settings over the request.
func applyRunFlags(cmd *cobra.Command, req *orchestrator.Request) error {
	f := cmd.Flags()
	if f.Changed("dry-run") {
		req.Defaults.DryRun = &runDryRun
	}
	if f.Changed("continue-on-failure") {
		req.Defaults.ContinueOnFailure = &runContinue
	}
	if runJSONOut != "" {
		req.Outputs.JSONPath = runJSONOut
	}
	if runMarkdownOut != "" {
		req.Outputs.MarkdownPath = runMarkdownOut
	}
	if runAPIBaseURL != "" {
		req.APIBaseURL = runAPIBaseURL
	}
	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}
	if len(vars) > 0 && req.Variables == nil {
		req.Variables = make(map[string]any, len(vars))
	}
	for k, v := range vars {
		req.Variables[k] = v
	}
	return nil
}

// parseVars reads key=value pairs. Values that parse as JSON keep their type.
func parseVars(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, apperr.Newf(apperr.ValidationError, "invalid --var %q, want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// needsData reports whether any enabled suite talks to the data layer.
func needsData(suites []orchestrator.SuiteConfig) bool {
	for _, s := range suites {
		if s.IsEnabled() && s.Kind != orchestrator.KindAPIJourney {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVar(&runRoot, "root", "", "Suites root (default: suites_root from config)")
	f.StringVar(&runRequestFile, "request", "", "Run request file (YAML or JSON)")
	f.BoolVar(&runAll, "all", false, "Run every suite file found in the suites root")
	f.StringVar(&runKind, "kind", "", "Suite kind for the given files (lifecycle, scenario, api_journey)")
	f.BoolVar(&runDryRun, "dry-run", true, "Roll back every data mutation")
	f.BoolVar(&runContinue, "continue-on-failure", true, "Keep running suites after one fails")
	f.StringArrayVar(&runVars, "var", nil, "Variable visible to suites as {{key}} (key=value, repeatable)")
	f.StringVar(&runJSONOut, "json-out", "", "Write the run result as JSON to this path")
	f.StringVar(&runMarkdownOut, "md-out", "", "Write the Markdown report to this path")
	f.StringVar(&runAPIBaseURL, "api-base-url", "", "Base URL for API journeys (default: api.base_url)")
	f.BoolVar(&runNoHistory, "no-history", false, "Do not record this run in the local history")
	f.BoolVar(&runJSON, "json", false, "Print the run result as JSON instead of the report")
}
