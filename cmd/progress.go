// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"agentfit/cli/internal/orchestrator"

	"github.com/pterm/pterm"
)

// progress renders orchestrator events as one spinner line per suite.
// Events arrive on the orchestrator goroutine, so no locking is needed.
type progress struct {
	spinner *pterm.SpinnerPrinter
	quiet   bool
}

func newProgress(quiet bool) *progress { return &progress{quiet: quiet} }

func (p *progress) OnEvent(ev orchestrator.Event) {
	if p.quiet {
		return
	}
	switch ev.Type {
	case orchestrator.EventSuiteStarted:
		text := fmt.Sprintf("[%d/%d] %s (%s)", ev.Index, ev.Count, ev.Suite, ev.Kind)
		sp, err := pterm.DefaultSpinner.WithRemoveWhenDone(false).Start(text)
		if err == nil {
			p.spinner = sp
		}
	case orchestrator.EventSuiteFinished:
		if ev.Result == nil {
			return
		}
		r := ev.Result
		line := fmt.Sprintf("%s  %d/%d checks passed in %dms", r.Name, r.Passed, r.Total, r.DurationMs)
		if r.IssueCount > 0 {
			line += fmt.Sprintf(", %d issue(s)", r.IssueCount)
		}
		p.finish(r.Success, line)
		for _, w := range r.Warnings {
			pterm.Warning.Println(w)
		}
	case orchestrator.EventRunFinished:
		p.finish(false, "")
		pterm.Println()
	}
}

func (p *progress) finish(ok bool, line string) {
	if p.spinner == nil {
		return
	}
	sp := p.spinner
	p.spinner = nil
	switch {
	case line == "":
		_ = sp.Stop()
	case ok:
		sp.Success(line)
	default:
		sp.Fail(line)
	}
}
