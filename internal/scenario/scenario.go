// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package scenario runs generated scenario packs: each scenario is either a
// natural-language prompt, translated first, or a hand-written request, and
// is then validated and optionally executed.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/logging"
	"agentfit/cli/internal/translator"

	"go.uber.org/zap"
)

// Translator converts prompts into envelopes. *translator.Translator implements it.
type Translator interface {
	Translate(text string, opts translator.Options) translator.Result
}

// Scenario is one prompt or request.
type Scenario struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Name   string `json:"name" yaml:"name"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	// Request is an envelope, or a bare command, as decoded JSON or YAML.
	Request any `json:"request,omitempty" yaml:"request,omitempty"`
	// Action forces the translator's action for a prompt.
	Action  command.Action `json:"action,omitempty" yaml:"action,omitempty"`
	Execute *bool          `json:"execute,omitempty" yaml:"execute,omitempty"`
	DryRun  *bool          `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	Scope   *command.Scope `json:"scope,omitempty" yaml:"scope,omitempty"`
	Expect  *Expect        `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Expect states the intended outcome when it is not plain success, for example
// an unsafe mutation the executor must refuse.
type Expect struct {
	Success       *bool  `json:"success,omitempty" yaml:"success,omitempty"`
	ErrorContains string `json:"errorContains,omitempty" yaml:"errorContains,omitempty"`
}

// Defaults apply to every scenario of a pack.
type Defaults struct {
	DryRun bool          `json:"dryRun" yaml:"dryRun"`
	Scope  command.Scope `json:"scope" yaml:"scope"`
}

// Pack is a scenario suite payload.
type Pack struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Defaults  Defaults   `json:"defaults" yaml:"defaults"`
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// Outcome is the result of one scenario.
type Outcome struct {
	ID          string             `json:"id,omitempty"`
	Name        string             `json:"name"`
	Success     bool               `json:"success"`
	Translation *translator.Result `json:"translation,omitempty"`
	Request     *command.Envelope  `json:"request,omitempty"`
	Response    *command.Response  `json:"response,omitempty"`
	Error       string             `json:"error,omitempty"`
	// TranslationFailed is set when the prompt could not be translated.
	TranslationFailed bool `json:"translationFailed,omitempty"`
	// ExpectationFailed is set when an explicit expect block did not hold.
	ExpectationFailed bool  `json:"expectationFailed,omitempty"`
	DurationMs        int64 `json:"durationMs"`
}

// Result is the outcome of a pack.
type Result struct {
	Success   bool      `json:"success"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Results   []Outcome `json:"results"`
}

// Runner runs scenarios through a translator and an executor.
type Runner struct {
	translator Translator
	executor   command.Executor
	log        *zap.Logger
}

// NewRunner builds a Runner. A nil executor allows only execute:false scenarios.
func NewRunner(tr Translator, exec command.Executor, log *zap.Logger) *Runner {
	return &Runner{translator: tr, executor: exec, log: logging.OrNop(log)}
}

// Run executes every scenario of pack in order.
func (r *Runner) Run(ctx context.Context, pack Pack) Result {
	res := Result{Total: len(pack.Scenarios), Results: make([]Outcome, 0, len(pack.Scenarios))}
	for i, sc := range pack.Scenarios {
		if sc.ID == "" {
			sc.ID = fmt.Sprintf("scenario_%d", i+1)
		}
		out := r.RunScenario(ctx, sc, pack.Defaults)
		if out.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
		res.Results = append(res.Results, out)
	}
	res.Success = res.Failed == 0
	return res
}

// RunScenario runs one scenario with pack defaults.
func (r *Runner) RunScenario(ctx context.Context, sc Scenario, defaults Defaults) Outcome {
	start := time.Now()
	out := Outcome{ID: sc.ID, Name: sc.Name}
	if out.Name == "" {
		out.Name = sc.ID
	}

	err := r.run(ctx, sc, defaults, &out)
	ok := err == nil
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	out.Success, out.Error = ok, msg
	if sc.Expect != nil {
		if failure := checkExpect(*sc.Expect, ok, msg); failure != "" {
			out.Success = false
			out.ExpectationFailed = true
			out.Error = failure
		} else {
			out.Success = true
		}
	}
	out.DurationMs = time.Since(start).Milliseconds()

	r.log.Debug("scenario finished",
		zap.String("scenario", out.Name),
		zap.Bool("success", out.Success),
		zap.String("error", out.Error))
	return out
}

func (r *Runner) run(ctx context.Context, sc Scenario, defaults Defaults, out *Outcome) error {
	hasPrompt := strings.TrimSpace(sc.Prompt) != ""
	if hasPrompt == (sc.Request != nil) {
		return apperr.New(apperr.ValidationError, "scenario must set exactly one of prompt or request")
	}

	dryRun := defaults.DryRun
	if sc.DryRun != nil {
		dryRun = *sc.DryRun
	}
	scope := defaults.Scope
	if sc.Scope != nil {
		scope = sc.Scope.Merge(defaults.Scope)
	}

	var env command.Envelope
	if hasPrompt {
		tr := r.translator.Translate(sc.Prompt, translator.Options{Action: sc.Action, DryRun: dryRun, Scope: scope})
		out.Translation = &tr
		if !tr.Success {
			out.TranslationFailed = true
			return translationError(tr)
		}
		env = *tr.Request
	} else {
		decoded, err := decodeRequest(sc.Request)
		if err != nil {
			return err
		}
		decoded.Scope = decoded.Scope.Merge(scope)
		decoded.DryRun = decoded.DryRun || dryRun
		if err := command.ValidateEnvelope(decoded); err != nil {
			return err
		}
		env = decoded
	}
	out.Request = &env

	if sc.Execute != nil && !*sc.Execute {
		return nil
	}
	if r.executor == nil {
		return apperr.New(apperr.ExecutionError, "no executor configured")
	}
	resp := r.executor.Execute(ctx, env)
	out.Response = &resp
	if !resp.Success {
		if resp.Error == "" {
			return apperr.New(apperr.ExecutionError, "executor reported failure")
		}
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

// decodeRequest accepts a full envelope or a bare command.
func decodeRequest(req any) (command.Envelope, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return command.Envelope{}, apperr.Wrap(apperr.ValidationError, "request is not JSON encodable", err)
	}
	if m, ok := req.(map[string]any); ok {
		if _, isEnvelope := m["command"]; !isEnvelope {
			cmd, err := command.DecodeCommand(raw)
			if err != nil {
				return command.Envelope{}, err
			}
			return command.NewEnvelope(cmd, command.EnvelopeOptions{}), nil
		}
	}
	return command.DecodeEnvelope(raw)
}

func translationError(tr translator.Result) error {
	msg := "translation failed"
	if tr.Error != nil {
		msg += ": " + tr.Error.Message
		if len(tr.Error.Suggestions) > 0 {
			msg += " (suggestions: " + strings.Join(tr.Error.Suggestions, ", ") + ")"
		}
	}
	return fmt.Errorf("%s", msg)
}

// checkExpect returns a failure message, or "" when the outcome matches.
func checkExpect(exp Expect, ok bool, msg string) string {
	want := true
	if exp.Success != nil {
		want = *exp.Success
	} else if exp.ErrorContains != "" {
		want = false
	}
	if ok != want {
		if want {
			return "expected success, got error: " + msg
		}
		return "expected failure, but the scenario succeeded"
	}
	if exp.ErrorContains != "" && !strings.Contains(strings.ToLower(msg), strings.ToLower(exp.ErrorContains)) {
		return fmt.Sprintf("expected error containing %q, got: %s", exp.ErrorContains, msg)
	}
	return ""
}
