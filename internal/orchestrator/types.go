// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"time"

	"agentfit/cli/internal/command"
	"agentfit/cli/internal/issue"
)

// Kind selects the runner of a suite.
type Kind string

const (
	KindLifecycle  Kind = "lifecycle"
	KindScenario   Kind = "scenario"
	KindAPIJourney Kind = "api_journey"
)

// Source is where a suite payload comes from. Exactly one field is set.
type Source struct {
	// FilePath is resolved inside the suites root.
	FilePath string `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	Inline   any    `json:"inline,omitempty" yaml:"inline,omitempty"`
}

// SuiteConfig is one entry of a run request.
type SuiteConfig struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Kind    Kind     `json:"kind" yaml:"kind"`
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Source  Source   `json:"source" yaml:"source"`
}

// IsEnabled reports whether the suite should run. Suites are enabled unless
// explicitly disabled.
func (s SuiteConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// Defaults are run-level defaults. Nil pointers fall back to the orchestrator config.
type Defaults struct {
	DryRun            *bool         `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`
	ContinueOnFailure *bool         `json:"continueOnFailure,omitempty" yaml:"continueOnFailure,omitempty"`
	Scope             command.Scope `json:"scope" yaml:"scope"`
}

// Outputs are optional artifact paths. Relative paths are written under the
// workspace directory.
type Outputs struct {
	JSONPath     string `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`
	MarkdownPath string `json:"markdownPath,omitempty" yaml:"markdownPath,omitempty"`
}

// Request is one orchestrator invocation.
type Request struct {
	Suites     []SuiteConfig  `json:"suites" yaml:"suites"`
	Variables  map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Defaults   Defaults       `json:"defaults" yaml:"defaults"`
	Outputs    Outputs        `json:"outputs" yaml:"outputs"`
	APIBaseURL string         `json:"apiBaseUrl,omitempty" yaml:"apiBaseUrl,omitempty"`
}

// SuiteResult is the outcome of one suite. Details keeps the runner's own
// result for audit.
type SuiteResult struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Success    bool     `json:"success"`
	Total      int      `json:"total"`
	Passed     int      `json:"passed"`
	Failed     int      `json:"failed"`
	DurationMs int64    `json:"durationMs"`
	Warnings   []string `json:"warnings"`
	IssueCount int      `json:"issueCount"`
	Details    any      `json:"details,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Success      bool `json:"success"`
	Suites       int  `json:"suites"`
	SuitesPassed int  `json:"suitesPassed"`
	SuitesFailed int  `json:"suitesFailed"`
	Checks       int  `json:"checks"`
	ChecksPassed int  `json:"checksPassed"`
	ChecksFailed int  `json:"checksFailed"`
	Issues       int  `json:"issues"`
}

// Run is the frozen outcome of one invocation.
type Run struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	DurationMs int64          `json:"durationMs"`
	Summary    Summary        `json:"summary"`
	Suites     []SuiteResult  `json:"suites"`
	Issues     []issue.Issue  `json:"issues"`
	Variables  map[string]any `json:"variables"`
	// Markdown is the rendered report.
	Markdown string `json:"-"`
	// Artifacts lists the output files written for this run.
	Artifacts []string `json:"artifacts,omitempty"`
}
