// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package journey runs declarative HTTP journeys against the platform API.
//
// A journey is an ordered list of steps. Each step is interpolated against the
// variable bag, sent, checked against its expectations and may capture values
// from the response for later steps. Steps run strictly one after another.
package journey

import (
	"agentfit/cli/internal/issue"
)

// Pack is one journey definition.
type Pack struct {
	Name      string         `json:"name"`
	BaseURL   string         `json:"baseUrl,omitempty"`
	Defaults  Defaults       `json:"defaults"`
	Variables map[string]any `json:"variables,omitempty"`
	Steps     []Step         `json:"steps"`
}

// Defaults apply to every step of a pack.
type Defaults struct {
	Headers           map[string]string `json:"headers,omitempty"`
	ContinueOnFailure *bool             `json:"continueOnFailure,omitempty"`
}

// Step is one HTTP call.
type Step struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name"`
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Query    map[string]any    `json:"query,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     any               `json:"body,omitempty"`
	Expect   *Expect           `json:"expect,omitempty"`
	Captures []Capture         `json:"captures,omitempty"`
}

// Expect lists the checks of one step. Every check runs; failures accumulate.
type Expect struct {
	Status       *int     `json:"status,omitempty"`
	Success      *bool    `json:"success,omitempty"`
	BodyContains string   `json:"bodyContains,omitempty"`
	Asserts      []Assert `json:"asserts,omitempty"`
}

// Source selects which part of a response an assertion or capture reads.
type Source string

const (
	FromBody    Source = "body"
	FromHeaders Source = "headers"
	FromStatus  Source = "status"
)

// Assert checks one value of the response. Each predicate that is set is
// evaluated independently.
type Assert struct {
	Path     string  `json:"path,omitempty"`
	Source   Source  `json:"source,omitempty"`
	Exists   *bool   `json:"exists,omitempty"`
	Equals   any     `json:"equals,omitempty"`
	Contains *string `json:"contains,omitempty"`
	// Expr is a CEL expression over value, body, status and headers that
	// must evaluate to true.
	Expr string `json:"expr,omitempty"`
}

// Capture copies one response value into the variable bag.
type Capture struct {
	As           string `json:"as"`
	From         Source `json:"from,omitempty"`
	Path         string `json:"path,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty"`
	Required     bool   `json:"required,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	Success    bool           `json:"success"`
	Status     int            `json:"status"`
	URL        string         `json:"url"`
	DurationMs int64          `json:"durationMs"`
	Failures   []string       `json:"failures"`
	Captures   map[string]any `json:"captures"`
	Body       any            `json:"body,omitempty"`
}

// Issue is a failed step, classified.
type Issue struct {
	StepName       string               `json:"stepName"`
	Classification issue.Classification `json:"classification"`
	Message        string               `json:"message"`
}

// Result is the outcome of one journey.
type Result struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	// Skipped counts steps not run after a stopping failure.
	Skipped   int            `json:"skipped"`
	Steps     []StepResult   `json:"steps"`
	Issues    []Issue        `json:"issues"`
	Variables map[string]any `json:"variables"`
}
