// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RenderMarkdown renders the run report. The output depends only on run.
func RenderMarkdown(run Run) string {
	var b strings.Builder
	status := "PASSED"
	if !run.Summary.Success {
		status = "FAILED"
	}

	b.WriteString("# Agent Fitness Report\n\n")
	fmt.Fprintf(&b, "- Run ID: `%s`\n", run.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", run.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %dms\n", run.DurationMs)
	fmt.Fprintf(&b, "- Result: **%s**\n\n", status)

	s := run.Summary
	b.WriteString("## Totals\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	for _, row := range []struct {
		label string
		n     int
	}{
		{"Suites", s.Suites},
		{"Suites passed", s.SuitesPassed},
		{"Suites failed", s.SuitesFailed},
		{"Checks", s.Checks},
		{"Checks passed", s.ChecksPassed},
		{"Checks failed", s.ChecksFailed},
		{"Issues", s.Issues},
	} {
		fmt.Fprintf(&b, "| %s | %d |\n", row.label, row.n)
	}

	b.WriteString("\n## Suites\n\n")
	if len(run.Suites) == 0 {
		b.WriteString("No suites were run.\n")
	} else {
		b.WriteString("| Suite | Kind | Passed | Failed | Duration | Success |\n|---|---|---|---|---|---|\n")
		for _, sr := range run.Suites {
			ok := "no"
			if sr.Success {
				ok = "yes"
			}
			fmt.Fprintf(&b, "| %s | %s | %d/%d | %d | %dms | %s |\n",
				cell(sr.Name), sr.Kind, sr.Passed, sr.Total, sr.Failed, sr.DurationMs, ok)
		}
	}

	b.WriteString("\n## Issues\n\n")
	if len(run.Issues) == 0 {
		b.WriteString("No issues detected.\n")
	}
	for _, iss := range run.Issues {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", iss.Classification, iss.SuiteName, oneLine(iss.Message))
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// persist writes the requested artifacts. Failures are logged and skipped.
func (o *Orchestrator) persist(run *Run, out Outputs) {
	if out.JSONPath != "" {
		doc := struct {
			RunID     string         `json:"runId"`
			StartedAt time.Time      `json:"startedAt"`
			Summary   Summary        `json:"summary"`
			Suites    []SuiteResult  `json:"suites"`
			Issues    any            `json:"issues"`
			Variables map[string]any `json:"variables"`
		}{run.RunID, run.StartedAt, run.Summary, run.Suites, run.Issues, run.Variables}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err == nil {
			o.write(run, out.JSONPath, append(data, '\n'))
		} else {
			o.log.Warn("encode run result", zap.Error(err))
		}
	}
	if out.MarkdownPath != "" {
		o.write(run, out.MarkdownPath, []byte(run.Markdown))
	}
}

func (o *Orchestrator) write(run *Run, p string, data []byte) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(o.cfg.WorkspaceDir, p)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		o.log.Warn("create output directory", zap.String("path", p), zap.Error(err))
		return
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		o.log.Warn("write output", zap.String("path", p), zap.Error(err))
		return
	}
	run.Artifacts = append(run.Artifacts, p)
}
