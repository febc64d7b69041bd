// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package translator turns one free-text sentence into a validated request
// envelope.
//
// Translation is best effort. The action comes from keywords, the table from a
// short list of grammar patterns or from catalog detection, and clauses from
// small regular grammars in rules.go. Every table and column is resolved
// through the schema catalog, and the assembled envelope is validated against
// the command contract before it is returned, so a successful result always
// carries a structurally valid command. Unfiltered updates and deletes are
// returned with a warning note; refusing them is the executor's job.
package translator

import (
	"fmt"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"
	"agentfit/cli/internal/logging"

	"go.uber.org/zap"
)

// MaxSuggestions caps the table suggestions of an unresolved translation.
const MaxSuggestions = 8

// Inferred is what the translator believed the sentence asked for.
type Inferred struct {
	Action command.Action `json:"action"`
	Table  string         `json:"table,omitempty"`
}

// Failure explains an unsuccessful translation.
type Failure struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Result is the outcome of one translation. Inferred and Confidence are set
// whether or not the translation succeeded.
type Result struct {
	Success    bool              `json:"success"`
	Confidence float64           `json:"confidence"`
	Notes      []string          `json:"notes"`
	Inferred   Inferred          `json:"inferred"`
	Request    *command.Envelope `json:"request,omitempty"`
	Error      *Failure          `json:"error,omitempty"`
}

// Options tune one translation.
type Options struct {
	// Action, when set, replaces keyword inference.
	Action         command.Action
	DryRun         bool
	Scope          command.Scope
	IdempotencyKey string
}

// Translator translates sentences against one catalog.
type Translator struct {
	catalog  catalog.Catalog
	contract *command.Contract
	log      *zap.Logger
}

// New returns a Translator over cat.
func New(cat catalog.Catalog, log *zap.Logger) *Translator {
	return &Translator{catalog: cat, contract: command.DefaultContract(), log: logging.OrNop(log)}
}

// Translate converts text into a request envelope. It never panics and never
// returns an invalid command.
func (t *Translator) Translate(text string, opts Options) Result {
	res := Result{Notes: []string{}}

	action := opts.Action
	if action == "" {
		action = inferAction(text)
	}
	res.Inferred.Action = action

	table, resolved := t.inferTable(text)
	if !resolved {
		res.Confidence = confidence(false, action, len(res.Notes))
		res.Error = &Failure{
			Message:     "Could not resolve a table from the request",
			Suggestions: t.catalog.SuggestTables(text, MaxSuggestions),
		}
		t.log.Debug("translation failed", zap.String("reason", "table unresolved"), zap.Strings("suggestions", res.Error.Suggestions))
		return res
	}
	res.Inferred.Table = table

	if !t.catalog.HasTable(table) {
		res.Confidence = confidence(true, action, len(res.Notes))
		res.Error = &Failure{Message: fmt.Sprintf("Table %q was not found in the schema catalog", table)}
		return res
	}

	cmd, notes := t.build(action, table, text)
	res.Notes = append(res.Notes, notes...)
	res.Confidence = confidence(true, action, len(res.Notes))

	env := command.NewEnvelope(cmd, command.EnvelopeOptions{
		IdempotencyKey: opts.IdempotencyKey,
		DryRun:         opts.DryRun,
		Scope:          opts.Scope,
	})
	if err := t.contract.ValidateEnvelope(env); err != nil {
		res.Error = &Failure{
			Message:     "Translated request is invalid",
			Suggestions: []string{err.Error()},
		}
		t.log.Debug("translation failed", zap.String("reason", "contract"), zap.Error(err))
		return res
	}

	res.Success = true
	res.Request = &env
	t.log.Debug("translated",
		zap.String("action", string(action)),
		zap.String("table", table),
		zap.Float64("confidence", res.Confidence),
		zap.Int("notes", len(res.Notes)))
	return res
}

// inferTable tries the explicit grammar patterns, then catalog detection.
func (t *Translator) inferTable(text string) (string, bool) {
	for _, phrase := range tablePhrases(text) {
		if table, ok := resolvePhrase(t.catalog, phrase); ok {
			return table, true
		}
	}
	if found := t.catalog.DetectTablesInText(text, 1); len(found) > 0 {
		return found[0], true
	}
	return "", false
}

func (t *Translator) build(action command.Action, table, text string) (command.Command, []string) {
	switch action {
	case command.ActionInsert:
		values, notes := parseAssignments(t.catalog, table, text)
		return &command.Mutate{Action: action, Table: table, Values: values, Filters: []command.Filter{}}, notes

	case command.ActionUpdate:
		values, notes := parseAssignments(t.catalog, table, setClause(text))
		filters, more := parseFilters(t.catalog, table, text)
		notes = append(notes, more...)
		if len(filters) == 0 {
			notes = append(notes, "No WHERE clause detected for update; every row would be affected and the executor will refuse it")
		}
		return &command.Mutate{Action: action, Table: table, Values: values, Filters: filters}, notes

	case command.ActionDelete:
		filters, notes := parseFilters(t.catalog, table, text)
		if len(filters) == 0 {
			notes = append(notes, "No WHERE clause detected for delete; every row would be affected and the executor will refuse it")
		}
		return &command.Mutate{Action: action, Table: table, Filters: filters}, notes
	}

	filters, notes := parseFilters(t.catalog, table, text)
	sort, more := parseOrder(t.catalog, table, text)
	notes = append(notes, more...)
	q := &command.Query{
		Table:   table,
		Select:  parseProjection(t.catalog, table, text),
		Filters: filters,
		Sort:    sort,
	}
	if n, ok := parseLimit(text); ok {
		q.Limit = command.IntPtr(n)
	}
	return q, notes
}
