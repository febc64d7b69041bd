// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package lifecycle runs phased lifecycle packs. A lifecycle walks one entity
// through its life (create, read, change, remove) as ordered phases of
// scenario steps, capturing values from each response for the steps after it.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agentfit/cli/internal/command"
	"agentfit/cli/internal/issue"
	"agentfit/cli/internal/logging"
	"agentfit/cli/internal/scenario"
	"agentfit/cli/internal/template"

	"go.uber.org/zap"
)

// Pack is a lifecycle suite payload.
type Pack struct {
	Name      string         `json:"name" yaml:"name"`
	Defaults  Defaults       `json:"defaults" yaml:"defaults"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Phases    []Phase        `json:"phases" yaml:"phases"`
}

// Defaults apply to every step. Nil pointers defer to the caller's options.
type Defaults struct {
	DryRun            *bool         `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	Scope             command.Scope `json:"scope" yaml:"scope"`
	ContinueOnFailure *bool         `json:"continueOnFailure,omitempty" yaml:"continueOnFailure,omitempty"`
}

// Phase groups steps.
type Phase struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is a scenario plus captures. Prompt and Request are interpolated
// against the variable bag right before the step runs.
type Step struct {
	Name     string           `json:"name" yaml:"name"`
	Prompt   string           `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Request  any              `json:"request,omitempty" yaml:"request,omitempty"`
	Action   command.Action   `json:"action,omitempty" yaml:"action,omitempty"`
	Execute  *bool            `json:"execute,omitempty" yaml:"execute,omitempty"`
	Expect   *scenario.Expect `json:"expect,omitempty" yaml:"expect,omitempty"`
	Captures []Capture        `json:"captures,omitempty" yaml:"captures,omitempty"`
}

// Capture copies a value out of the executor response, e.g. "result.rows[0].id".
type Capture struct {
	As           string `json:"as" yaml:"as"`
	Path         string `json:"path" yaml:"path"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
}

// Options are the caller's run-level settings.
type Options struct {
	DryRun            bool
	ContinueOnFailure bool
	Scope             command.Scope
	Variables         map[string]any
}

// Summary counts steps.
type Summary struct {
	TotalSteps  int `json:"totalSteps"`
	PassedSteps int `json:"passedSteps"`
	FailedSteps int `json:"failedSteps"`
}

// Issue is a failed step, already classified.
type Issue struct {
	PhaseName      string               `json:"phaseName"`
	StepName       string               `json:"stepName"`
	Message        string               `json:"message"`
	Classification issue.Classification `json:"classification"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Phase    string           `json:"phase"`
	Name     string           `json:"name"`
	Success  bool             `json:"success"`
	Outcome  scenario.Outcome `json:"outcome"`
	Captures map[string]any   `json:"captures"`
}

// Result is the outcome of a lifecycle pack.
type Result struct {
	Name      string         `json:"name"`
	Success   bool           `json:"success"`
	Summary   Summary        `json:"summary"`
	Warnings  []string       `json:"warnings"`
	Issues    []Issue        `json:"issues"`
	Steps     []StepResult   `json:"steps"`
	Variables map[string]any `json:"variables"`
}

// Runner runs lifecycle packs on top of a scenario runner.
type Runner struct {
	scenarios *scenario.Runner
	log       *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(scenarios *scenario.Runner, log *zap.Logger) *Runner {
	return &Runner{scenarios: scenarios, log: logging.OrNop(log)}
}

// Run executes every phase in order. Failures are reported in the result.
func (r *Runner) Run(ctx context.Context, pack Pack, opts Options) Result {
	res := Result{
		Name:      pack.Name,
		Warnings:  []string{},
		Issues:    []Issue{},
		Steps:     []StepResult{},
		Variables: map[string]any{},
	}
	for _, ph := range pack.Phases {
		res.Summary.TotalSteps += len(ph.Steps)
	}

	defaults := scenario.Defaults{DryRun: opts.DryRun, Scope: pack.Defaults.Scope.Merge(opts.Scope)}
	if pack.Defaults.DryRun != nil {
		defaults.DryRun = *pack.Defaults.DryRun
	}
	cont := opts.ContinueOnFailure
	if pack.Defaults.ContinueOnFailure != nil {
		cont = *pack.Defaults.ContinueOnFailure
	}

	state := template.NewState()
	bag, err := state.Resolve(pack.Variables, opts.Variables)
	if err != nil {
		name := ""
		var ve *template.VariableError
		if errors.As(err, &ve) {
			name = ve.Name
		}
		res.Summary.FailedSteps = min(1, res.Summary.TotalSteps)
		res.Issues = append(res.Issues, Issue{
			PhaseName:      "variables",
			StepName:       name,
			Message:        err.Error(),
			Classification: issue.Classify(err.Error()),
		})
		return res
	}

	for _, ph := range pack.Phases {
		for _, st := range ph.Steps {
			sr, iss := r.runStep(ctx, state, bag, defaults, ph.Name, st)
			res.Steps = append(res.Steps, sr)
			for k, v := range sr.Captures {
				res.Variables[k] = v
			}
			if sr.Outcome.Translation != nil {
				for _, n := range sr.Outcome.Translation.Notes {
					res.Warnings = append(res.Warnings, fmt.Sprintf("%s/%s: %s", ph.Name, st.Name, n))
				}
			}
			if sr.Success {
				res.Summary.PassedSteps++
				continue
			}
			res.Summary.FailedSteps++
			res.Issues = append(res.Issues, iss)
			r.log.Debug("lifecycle step failed", zap.String("phase", ph.Name), zap.String("step", st.Name), zap.String("message", iss.Message))
			if !cont {
				res.Success = false
				return res
			}
		}
	}

	res.Success = res.Summary.FailedSteps == 0
	return res
}

func (r *Runner) runStep(ctx context.Context, state *template.State, bag map[string]any, defaults scenario.Defaults, phase string, st Step) (StepResult, Issue) {
	sr := StepResult{Phase: phase, Name: st.Name, Captures: map[string]any{}}
	fail := func(msg string, cls issue.Classification) (StepResult, Issue) {
		sr.Success = false
		if sr.Outcome.Error == "" {
			sr.Outcome.Error = msg
		}
		return sr, Issue{PhaseName: phase, StepName: st.Name, Message: msg, Classification: cls}
	}

	sc := scenario.Scenario{Name: st.Name, Action: st.Action, Execute: st.Execute, Expect: st.Expect}
	if st.Prompt != "" {
		prompt, err := state.Text(st.Prompt, bag)
		if err != nil {
			return fail(err.Error(), issue.Classify(err.Error()))
		}
		sc.Prompt = prompt
	}
	if st.Request != nil {
		req, err := state.Interpolate(st.Request, bag)
		if err != nil {
			return fail(err.Error(), issue.Classify(err.Error()))
		}
		sc.Request = req
	}

	sr.Outcome = r.scenarios.RunScenario(ctx, sc, defaults)
	if !sr.Outcome.Success {
		switch {
		case sr.Outcome.ExpectationFailed:
			return fail(sr.Outcome.Error, issue.ExpectationMismatch)
		case sr.Outcome.TranslationFailed:
			return fail(sr.Outcome.Error, issue.ScenarioContract)
		}
		return fail(sr.Outcome.Error, issue.Classify(sr.Outcome.Error))
	}

	if len(st.Captures) > 0 {
		doc := responseDocument(sr.Outcome)
		for _, c := range st.Captures {
			v, ok := template.Lookup(doc, c.Path)
			if !ok || v == nil {
				if c.DefaultValue != nil {
					v = c.DefaultValue
				} else if c.Required {
					return fail(fmt.Sprintf("required capture %q missing at %s", c.As, c.Path), issue.ExpectationMismatch)
				} else {
					continue
				}
			}
			sr.Captures[c.As] = v
			bag[c.As] = v
		}
	}
	sr.Success = true
	return sr, Issue{}
}

// responseDocument renders the executor response and request as plain JSON
// values so capture paths see the same shape whichever executor ran.
func responseDocument(out scenario.Outcome) any {
	doc := map[string]any{}
	if out.Response != nil {
		doc["success"] = out.Response.Success
		doc["result"] = plain(out.Response.Result)
		doc["trace"] = plain(out.Response.Trace)
	}
	if out.Request != nil {
		doc["request"] = plain(out.Request)
	}
	return doc
}

func plain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
