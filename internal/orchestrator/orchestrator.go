// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package orchestrator runs an ordered list of heterogeneous fitness suites and
// folds their outcomes into one classified report.
//
// Suites run strictly one after another. Each enabled suite is loaded (from an
// inline payload or a file confined to the suites root), dispatched to the
// runner of its kind, and recorded as a SuiteResult. Variables captured by a
// suite are written back to the shared bag before the next suite starts, which
// is the only state suites share. A suite that cannot be loaded or run becomes
// a single failed check with one issue; Run itself never fails.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/issue"
	"agentfit/cli/internal/journey"
	"agentfit/cli/internal/lifecycle"
	"agentfit/cli/internal/logging"
	"agentfit/cli/internal/scenario"
	"agentfit/cli/internal/template"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleRunner runs lifecycle packs. *lifecycle.Runner implements it.
type LifecycleRunner interface {
	Run(ctx context.Context, pack lifecycle.Pack, opts lifecycle.Options) lifecycle.Result
}

// ScenarioRunner runs scenario packs. *scenario.Runner implements it.
type ScenarioRunner interface {
	Run(ctx context.Context, pack scenario.Pack) scenario.Result
}

// JourneyRunner runs API journeys. *journey.Runner implements it.
type JourneyRunner interface {
	Run(ctx context.Context, pack journey.Pack, opts journey.Options) journey.Result
}

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// Config holds the orchestrator settings chosen at process start.
type Config struct {
	// Root confines file sources.
	Root string
	// WorkspaceDir anchors relative output paths.
	WorkspaceDir string
	// APIBaseURL is the journey base URL when neither the pack nor the request sets one.
	APIBaseURL string
	// DryRun and ContinueOnFailure are used when a request leaves them unset.
	DryRun            bool
	ContinueOnFailure bool
}

// Orchestrator runs requests. It is not safe for concurrent Run calls.
type Orchestrator struct {
	cfg        Config
	sources    *Sources
	lifecycles LifecycleRunner
	scenarios  ScenarioRunner
	journeys   JourneyRunner
	observer   Observer
	recorder   Recorder
	log        *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLifecycleRunner(r LifecycleRunner) Option { return func(o *Orchestrator) { o.lifecycles = r } }
func WithScenarioRunner(r ScenarioRunner) Option   { return func(o *Orchestrator) { o.scenarios = r } }
func WithJourneyRunner(r JourneyRunner) Option     { return func(o *Orchestrator) { o.journeys = r } }
func WithObserver(obs Observer) Option             { return func(o *Orchestrator) { o.observer = obs } }
func WithRecorder(rec Recorder) Option             { return func(o *Orchestrator) { o.recorder = rec } }
func WithLogger(l *zap.Logger) Option              { return func(o *Orchestrator) { o.log = logging.OrNop(l) } }

// WithClock overrides the time source of run timestamps.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New builds an Orchestrator.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg, sources: NewSources(cfg.Root), log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sources returns the loader bound to the suites root.
func (o *Orchestrator) Sources() *Sources { return o.sources }

// runState is the mutable context of one Run.
type runState struct {
	dryRun     bool
	cont       bool
	scope      command.Scope
	apiBaseURL string
	vars       map[string]any
}

// Run executes req and returns the frozen run.
func (o *Orchestrator) Run(ctx context.Context, req Request) Run {
	started := o.now()
	run := Run{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Suites:    []SuiteResult{},
		Issues:    []issue.Issue{},
	}

	rs := &runState{
		dryRun:     o.cfg.DryRun,
		cont:       o.cfg.ContinueOnFailure,
		scope:      req.Defaults.Scope,
		apiBaseURL: req.APIBaseURL,
		vars:       make(map[string]any, len(req.Variables)+2),
	}
	if req.Defaults.DryRun != nil {
		rs.dryRun = *req.Defaults.DryRun
	}
	if req.Defaults.ContinueOnFailure != nil {
		rs.cont = *req.Defaults.ContinueOnFailure
	}
	if rs.apiBaseURL == "" {
		rs.apiBaseURL = o.cfg.APIBaseURL
	}
	for k, v := range req.Variables {
		rs.vars[k] = v
	}
	rs.vars["runId"] = run.RunID
	rs.vars["runStartedAt"] = started.UTC().Format("2006-01-02T15:04:05.000Z07:00")

	type planned struct {
		cfg      SuiteConfig
		id, name string
	}
	var plan []planned
	for i, sc := range req.Suites {
		if !sc.IsEnabled() {
			continue
		}
		id, name := identity(sc, i+1)
		plan = append(plan, planned{cfg: sc, id: id, name: name})
	}

	o.log.Info("fitness run started", zap.String("run_id", run.RunID), zap.Int("suites", len(plan)), zap.Bool("dry_run", rs.dryRun))
	for i, p := range plan {
		o.emit(Event{Type: EventSuiteStarted, Index: i + 1, Count: len(plan), Suite: p.name, Kind: p.cfg.Kind})

		sr, issues := o.runSuite(ctx, p.cfg, p.id, p.name, rs)
		run.Suites = append(run.Suites, sr)
		run.Issues = append(run.Issues, issues...)

		o.log.Info("suite finished",
			zap.String("suite", p.id),
			zap.String("kind", string(p.cfg.Kind)),
			zap.Bool("success", sr.Success),
			zap.Int("passed", sr.Passed),
			zap.Int("total", sr.Total),
			zap.Int("issues", sr.IssueCount))
		result := sr
		o.emit(Event{Type: EventSuiteFinished, Index: i + 1, Count: len(plan), Suite: p.name, Kind: p.cfg.Kind, Result: &result})

		if !sr.Success && !rs.cont {
			o.log.Info("stopping after failed suite", zap.String("suite", p.id))
			break
		}
	}

	run.Variables = rs.vars
	run.Summary = summarize(run.Suites, run.Issues)
	run.FinishedAt = o.now()
	run.DurationMs = run.FinishedAt.Sub(started).Milliseconds()
	run.Markdown = RenderMarkdown(run)

	o.persist(&run, req.Outputs)
	if o.recorder != nil {
		if err := o.recorder.Record(ctx, run); err != nil {
			o.log.Warn("record run history", zap.Error(err))
		}
	}

	summary := run.Summary
	o.emit(Event{Type: EventRunFinished, Summary: &summary})
	o.log.Info("fitness run finished", zap.String("run_id", run.RunID), zap.Bool("success", summary.Success))
	return run
}

func (o *Orchestrator) emit(ev Event) {
	if o.observer != nil {
		o.observer.OnEvent(ev)
	}
}

func summarize(suites []SuiteResult, issues []issue.Issue) Summary {
	s := Summary{Suites: len(suites), Issues: len(issues)}
	for _, sr := range suites {
		if sr.Success {
			s.SuitesPassed++
		} else {
			s.SuitesFailed++
		}
		s.Checks += sr.Total
		s.ChecksPassed += sr.Passed
		s.ChecksFailed += sr.Failed
	}
	// A suite may pass its own checks and still record issues; either blocks the run.
	s.Success = s.SuitesFailed == 0 && s.Issues == 0
	return s
}

func (o *Orchestrator) runSuite(ctx context.Context, sc SuiteConfig, id, name string, rs *runState) (SuiteResult, []issue.Issue) {
	start := time.Now()
	sr := SuiteResult{ID: id, Name: name, Kind: sc.Kind, Warnings: []string{}}

	issues, err := o.dispatch(ctx, sc, &sr, rs)
	if err != nil {
		msg := err.Error()
		o.log.Debug("suite failed to run", zap.String("suite", id), zap.Error(err))
		sr = SuiteResult{
			ID:       id,
			Name:     name,
			Kind:     sc.Kind,
			Total:    1,
			Failed:   1,
			Warnings: []string{},
			Details:  map[string]any{"error": msg},
		}
		issues = []issue.Issue{{SuiteID: id, SuiteName: name, Classification: issue.Classify(msg), Message: msg}}
	}
	for i := range issues {
		issues[i].SuiteID, issues[i].SuiteName = id, name
	}
	sr.IssueCount = len(issues)
	sr.DurationMs = time.Since(start).Milliseconds()
	return sr, issues
}

func (o *Orchestrator) dispatch(ctx context.Context, sc SuiteConfig, sr *SuiteResult, rs *runState) (issues []issue.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Newf(apperr.ExecutionError, "suite runner panicked: %v", r)
		}
	}()

	switch sc.Kind {
	case KindLifecycle, KindScenario, KindAPIJourney:
	default:
		return nil, apperr.Newf(apperr.ValidationError, "unknown suite kind %q", sc.Kind)
	}
	payload, err := o.sources.Load(sc.Source)
	if err != nil {
		return nil, err
	}

	switch sc.Kind {
	case KindLifecycle:
		return o.runLifecycle(ctx, payload, sr, rs)
	case KindScenario:
		return o.runScenarios(ctx, payload, sr, rs)
	default:
		return o.runJourney(ctx, payload, sr, rs)
	}
}

func (o *Orchestrator) runLifecycle(ctx context.Context, payload any, sr *SuiteResult, rs *runState) ([]issue.Issue, error) {
	if o.lifecycles == nil {
		return nil, apperr.New(apperr.ExecutionError, "no lifecycle runner configured")
	}
	var pack lifecycle.Pack
	if err := decode(payload, &pack); err != nil {
		return nil, err
	}
	if pack.Defaults.DryRun == nil {
		dry := rs.dryRun
		pack.Defaults.DryRun = &dry
	}

	res := o.lifecycles.Run(ctx, pack, lifecycle.Options{
		DryRun:            rs.dryRun,
		ContinueOnFailure: rs.cont,
		Scope:             rs.scope,
		Variables:         rs.vars,
	})
	sr.Success = res.Success
	sr.Total, sr.Passed, sr.Failed = res.Summary.TotalSteps, res.Summary.PassedSteps, res.Summary.FailedSteps
	sr.Warnings = append(sr.Warnings, res.Warnings...)
	sr.Details = res

	issues := make([]issue.Issue, 0, len(res.Issues))
	for _, iss := range res.Issues {
		issues = append(issues, issue.Issue{
			Classification: iss.Classification,
			Message:        fmt.Sprintf("%s/%s: %s", iss.PhaseName, iss.StepName, iss.Message),
		})
	}
	mergeCaptures(rs.vars, sr.ID, res.Variables)
	return issues, nil
}

func (o *Orchestrator) runScenarios(ctx context.Context, payload any, sr *SuiteResult, rs *runState) ([]issue.Issue, error) {
	if o.scenarios == nil {
		return nil, apperr.New(apperr.ExecutionError, "no scenario runner configured")
	}
	resolved, err := template.NewState().Interpolate(payload, rs.vars)
	if err != nil {
		return nil, err
	}
	var pack scenario.Pack
	if err := decode(resolved, &pack); err != nil {
		return nil, err
	}
	var head struct {
		Defaults struct {
			DryRun *bool `json:"dryRun"`
		} `json:"defaults"`
	}
	if err := decode(resolved, &head); err != nil {
		return nil, err
	}
	if head.Defaults.DryRun == nil {
		pack.Defaults.DryRun = rs.dryRun
	}
	pack.Defaults.Scope = pack.Defaults.Scope.Merge(rs.scope)

	res := o.scenarios.Run(ctx, pack)
	sr.Success = res.Success
	sr.Total, sr.Passed, sr.Failed = res.Total, res.Succeeded, res.Failed
	sr.Details = res

	var issues []issue.Issue
	for _, out := range res.Results {
		if out.Translation != nil {
			for _, n := range out.Translation.Notes {
				sr.Warnings = append(sr.Warnings, out.Name+": "+n)
			}
		}
		if out.Success {
			continue
		}
		var cls issue.Classification
		switch {
		case out.ExpectationFailed:
			cls = issue.ExpectationMismatch
		case out.TranslationFailed:
			cls = issue.ScenarioContract
		default:
			cls = issue.Classify(out.Error)
		}
		issues = append(issues, issue.Issue{Classification: cls, Message: out.Name + ": " + out.Error})
	}
	return issues, nil
}

func (o *Orchestrator) runJourney(ctx context.Context, payload any, sr *SuiteResult, rs *runState) ([]issue.Issue, error) {
	if o.journeys == nil {
		return nil, apperr.New(apperr.ExecutionError, "no api journey runner configured")
	}
	var pack journey.Pack
	if err := decode(payload, &pack); err != nil {
		return nil, err
	}

	res := o.journeys.Run(ctx, pack, journey.Options{
		BaseURL:           rs.apiBaseURL,
		ContinueOnFailure: rs.cont,
		Variables:         rs.vars,
	})
	sr.Success = res.Success
	sr.Total, sr.Passed, sr.Failed = res.Total, res.Passed, res.Failed
	if res.Skipped > 0 {
		sr.Warnings = append(sr.Warnings, fmt.Sprintf("%d step(s) skipped after a failure", res.Skipped))
	}
	sr.Details = res

	issues := make([]issue.Issue, 0, len(res.Issues))
	for _, iss := range res.Issues {
		issues = append(issues, issue.Issue{Classification: iss.Classification, Message: iss.Message})
	}
	mergeCaptures(rs.vars, sr.ID, res.Variables)
	return issues, nil
}

// mergeCaptures writes captured values into the bag, flat and under
// "<suiteID>_variables". Later writes win.
func mergeCaptures(bag map[string]any, suiteID string, captured map[string]any) {
	if len(captured) == 0 {
		return
	}
	ns := make(map[string]any, len(captured))
	for k, v := range captured {
		bag[k] = v
		ns[k] = v
	}
	bag[suiteID+"_variables"] = ns
}

var reSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(reSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// identity returns the suite id and display name. pos is the 1-based position
// in the request.
func identity(sc SuiteConfig, pos int) (string, string) {
	id := strings.TrimSpace(sc.ID)
	if id == "" {
		id = slug(sc.Name)
	}
	if id == "" {
		id = fmt.Sprintf("suite_%d", pos)
	}
	name := strings.TrimSpace(sc.Name)
	if name == "" {
		name = id
	}
	return id, name
}
