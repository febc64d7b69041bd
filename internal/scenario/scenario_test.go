// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package scenario

import (
	"context"
	"testing"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"
	"agentfit/cli/internal/translator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingExecutor struct {
	calls []command.Envelope
	fn    func(command.Envelope) command.Response
}

func (e *recordingExecutor) Execute(_ context.Context, env command.Envelope) command.Response {
	e.calls = append(e.calls, env)
	if e.fn != nil {
		return e.fn(env)
	}
	return command.Response{Success: true, Trace: []command.TraceEntry{}, Result: map[string]any{"rows": []any{}}}
}

func newRunner(exec command.Executor) *Runner {
	cat := catalog.NewSnapshot([]catalog.TableInfo{
		{Name: "customers", Columns: []string{"id", "name", "status", "biz_id"}},
		{Name: "bookings", Columns: []string{"id", "status"}},
	})
	return NewRunner(translator.New(cat, zap.NewNop()), exec, zap.NewNop())
}

func boolPtr(b bool) *bool { return &b }

func TestRunScenarioPrompt(t *testing.T) {
	exec := &recordingExecutor{}
	r := newRunner(exec)

	out := r.RunScenario(context.Background(), Scenario{Name: "list", Prompt: "list customers where status = active"}, Defaults{DryRun: true, Scope: command.Scope{BizID: "biz_1"}})

	require.True(t, out.Success, out.Error)
	require.NotNil(t, out.Translation)
	require.Len(t, exec.calls, 1)
	assert.True(t, exec.calls[0].DryRun)
	assert.Equal(t, "biz_1", exec.calls[0].Scope.BizID)
	assert.NotNil(t, out.Response)
	assert.Equal(t, out.Request.RequestID, exec.calls[0].RequestID)
}

func TestRunScenarioRequest(t *testing.T) {
	exec := &recordingExecutor{}
	r := newRunner(exec)

	sc := Scenario{
		Name:   "raw",
		DryRun: boolPtr(false),
		Scope:  &command.Scope{LocationID: "loc_1"},
		Request: map[string]any{
			"type":    "mutate",
			"action":  "update",
			"table":   "customers",
			"values":  map[string]any{"status": "vip"},
			"filters": []any{map[string]any{"column": "id", "op": "eq", "value": 3}},
		},
	}
	out := r.RunScenario(context.Background(), sc, Defaults{DryRun: true, Scope: command.Scope{BizID: "biz_1"}})

	require.True(t, out.Success, out.Error)
	require.Len(t, exec.calls, 1)
	env := exec.calls[0]
	assert.False(t, env.DryRun)
	assert.Equal(t, command.Scope{BizID: "biz_1", LocationID: "loc_1"}, env.Scope)
	m, ok := env.Command.(*command.Mutate)
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Filters[0].Value)
	assert.NotEmpty(t, env.RequestID)
}

func TestRunScenarioEnvelopeRequest(t *testing.T) {
	exec := &recordingExecutor{}
	r := newRunner(exec)

	sc := Scenario{
		Name:    "envelope",
		Execute: boolPtr(false),
		Request: map[string]any{
			"requestId": "req-7",
			"dryRun":    true,
			"command":   map[string]any{"type": "query", "table": "bookings", "filters": []any{}},
		},
	}
	out := r.RunScenario(context.Background(), sc, Defaults{})

	require.True(t, out.Success, out.Error)
	assert.Empty(t, exec.calls)
	assert.Equal(t, "req-7", out.Request.RequestID)
	assert.True(t, out.Request.DryRun)
	assert.Nil(t, out.Response)
}

func TestRunScenarioFailures(t *testing.T) {
	tests := []struct {
		name              string
		sc                Scenario
		exec              func(command.Envelope) command.Response
		wantErr           string
		translationFailed bool
		expectationFailed bool
	}{
		{
			name:    "both prompt and request",
			sc:      Scenario{Prompt: "list customers", Request: map[string]any{}},
			wantErr: "exactly one of prompt or request",
		},
		{
			name:    "neither prompt nor request",
			sc:      Scenario{},
			wantErr: "exactly one of prompt or request",
		},
		{
			name:              "untranslatable prompt",
			sc:                Scenario{Prompt: "show me everything about widgets"},
			wantErr:           "translation failed: Could not resolve a table from the request (suggestions: ",
			translationFailed: true,
		},
		{
			name:    "invalid request",
			sc:      Scenario{Request: map[string]any{"type": "query"}},
			wantErr: "VALIDATION_ERROR",
		},
		{
			name: "executor error",
			sc:   Scenario{Prompt: "delete from bookings where id = 1"},
			exec: func(command.Envelope) command.Response {
				return command.Response{Error: `EXECUTION_ERROR: delete on bookings failed: violates foreign key constraint`}
			},
			wantErr: "violates foreign key constraint",
		},
		{
			name: "expected failure did not happen",
			sc: Scenario{
				Prompt: "delete from bookings where id = 1",
				Expect: &Expect{ErrorContains: "unsafe_mutation"},
			},
			wantErr:           "expected failure, but the scenario succeeded",
			expectationFailed: true,
		},
		{
			name: "wrong error",
			sc: Scenario{
				Prompt: "delete from bookings",
				Expect: &Expect{Success: boolPtr(false), ErrorContains: "unsafe_mutation"},
			},
			exec: func(command.Envelope) command.Response {
				return command.Response{Error: "EXECUTION_ERROR: timeout"}
			},
			wantErr:           `expected error containing "unsafe_mutation", got: EXECUTION_ERROR: timeout`,
			expectationFailed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(&recordingExecutor{fn: tt.exec})
			out := r.RunScenario(context.Background(), tt.sc, Defaults{})
			assert.False(t, out.Success)
			assert.Contains(t, out.Error, tt.wantErr)
			assert.Equal(t, tt.translationFailed, out.TranslationFailed)
			assert.Equal(t, tt.expectationFailed, out.ExpectationFailed)
		})
	}
}

func TestRunScenarioExpectedRejection(t *testing.T) {
	exec := &recordingExecutor{fn: func(command.Envelope) command.Response {
		return command.Response{Error: "UNSAFE_MUTATION: refusing to delete bookings without filters"}
	}}
	r := newRunner(exec)

	out := r.RunScenario(context.Background(), Scenario{
		Name:   "guard",
		Prompt: "delete from bookings",
		Expect: &Expect{ErrorContains: "UNSAFE_MUTATION"},
	}, Defaults{})

	assert.True(t, out.Success)
	assert.Contains(t, out.Error, "refusing to delete")
	assert.Contains(t, out.Translation.Notes[0], "No WHERE clause detected for delete")
}

func TestRun(t *testing.T) {
	r := newRunner(&recordingExecutor{})
	res := r.Run(context.Background(), Pack{
		Defaults: Defaults{DryRun: true},
		Scenarios: []Scenario{
			{Name: "ok", Prompt: "list customers"},
			{Prompt: "show me everything about widgets"},
			{Name: "no exec", Prompt: "list bookings", Execute: boolPtr(false)},
		},
	})

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "scenario_2", res.Results[1].ID)
	assert.Equal(t, "scenario_2", res.Results[1].Name)
}

func TestRunWithoutExecutor(t *testing.T) {
	r := NewRunner(translator.New(catalog.NewSnapshot([]catalog.TableInfo{{Name: "tags", Columns: []string{"id"}}}), nil), nil, nil)
	out := r.RunScenario(context.Background(), Scenario{Prompt: "list tags"}, Defaults{})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "no executor configured")
}
