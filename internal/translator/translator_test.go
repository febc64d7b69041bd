// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package translator

import (
	"encoding/json"
	"strings"
	"testing"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testCatalog() *catalog.Snapshot {
	return catalog.NewSnapshot([]catalog.TableInfo{
		{Name: "customers", Columns: []string{"id", "name", "email", "status", "created_at", "biz_id"}},
		{Name: "bookings", Columns: []string{"id", "customer_id", "status", "starts_at", "biz_id"}},
		{Name: "offers", Columns: []string{"id", "title", "price"}},
		{Name: "queues", Columns: []string{"id", "name"}},
		{Name: "categories", Columns: []string{"id", "name"}},
		{Name: "price_rules", Columns: []string{"id", "amount"}},
		{Name: "acl_roles", Columns: []string{"id", "name"}},
		{Name: "staff_members", Columns: []string{"id", "name"}},
		{Name: "locations", Columns: []string{"id", "name"}},
	})
}

func TestTranslateUpdate(t *testing.T) {
	tr := New(testCatalog(), nil)

	res := tr.Translate("update customers set status=active where id=42", Options{})

	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, Inferred{Action: command.ActionUpdate, Table: "customers"}, res.Inferred)
	want := &command.Mutate{
		Action:  command.ActionUpdate,
		Table:   "customers",
		Values:  map[string]any{"status": "active"},
		Filters: []command.Filter{{Column: "id", Op: command.OpEq, Value: int64(42)}},
	}
	if diff := cmp.Diff(want, res.Request.Command); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, res.Notes)
	assert.Equal(t, 0.8, res.Confidence)
	assert.NotEmpty(t, res.Request.RequestID)
}

func TestTranslateUnfilteredDelete(t *testing.T) {
	tr := New(testCatalog(), nil)

	res := tr.Translate("delete from bookings", Options{DryRun: true})

	require.True(t, res.Success)
	m, ok := res.Request.Command.(*command.Mutate)
	require.True(t, ok)
	assert.Equal(t, command.ActionDelete, m.Action)
	assert.NotNil(t, m.Filters)
	assert.Empty(t, m.Filters)
	require.Len(t, res.Notes, 1)
	assert.True(t, strings.HasPrefix(res.Notes[0], "No WHERE clause detected for delete"))
	assert.True(t, res.Request.DryRun)
	assert.Equal(t, 0.75, res.Confidence)

	raw, err := json.Marshal(res.Request.Command)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"filters":[]`)
}

func TestTranslateUnknownTable(t *testing.T) {
	tr := New(testCatalog(), nil)

	res := tr.Translate("show me everything about widgets", Options{})

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Nil(t, res.Request)
	assert.Len(t, res.Error.Suggestions, MaxSuggestions)
	assert.Equal(t, command.ActionQuery, res.Inferred.Action)
	assert.Equal(t, "", res.Inferred.Table)
	assert.Equal(t, 0.45, res.Confidence)
}

// staleCatalog resolves names the live schema no longer has.
type staleCatalog struct {
	*catalog.Snapshot
}

func (staleCatalog) ResolveTableName(string) (string, bool) { return "archived_orders", true }

func TestTranslateTableMissingFromCatalog(t *testing.T) {
	tr := New(staleCatalog{testCatalog()}, nil)

	tests := []struct {
		name           string
		action         command.Action
		wantAction     command.Action
		wantConfidence float64
	}{
		{"inferred query", "", command.ActionQuery, 0.7},
		{"explicit delete", command.ActionDelete, command.ActionDelete, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tr.Translate("list rows from archived orders", Options{Action: tt.action})

			require.False(t, res.Success)
			assert.Equal(t, "archived_orders", res.Inferred.Table)
			assert.Equal(t, tt.wantAction, res.Inferred.Action)
			assert.Contains(t, res.Error.Message, "not found in the schema catalog")
			assert.Empty(t, res.Error.Suggestions)
			assert.Equal(t, tt.wantConfidence, res.Confidence)
		})
	}
}

func TestTranslateInvalidRequest(t *testing.T) {
	tr := New(testCatalog(), nil)

	res := tr.Translate("add a customer", Options{})

	require.False(t, res.Success)
	assert.Equal(t, Inferred{Action: command.ActionInsert, Table: "customers"}, res.Inferred)
	require.Len(t, res.Error.Suggestions, 1)
	assert.Contains(t, res.Error.Suggestions[0], "VALIDATION_ERROR")
}

func TestTranslateQuery(t *testing.T) {
	tr := New(testCatalog(), nil)

	res := tr.Translate("show name, email from customers where status = 'active' and created_at is not null order by name desc limit 10", Options{})

	require.True(t, res.Success, "%+v", res.Error)
	want := &command.Query{
		Table:  "customers",
		Select: []string{"name", "email"},
		Filters: []command.Filter{
			{Column: "status", Op: command.OpEq, Value: "active"},
			{Column: "created_at", Op: command.OpNotNull},
		},
		Sort:  []command.Sort{{Column: "name", Direction: command.Desc}},
		Limit: command.IntPtr(10),
	}
	if diff := cmp.Diff(want, res.Request.Command); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0.7, res.Confidence)
}

func TestTranslateCases(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		opts      Options
		wantCmd   command.Command
		wantNotes int
	}{
		{
			name: "loose filter",
			text: "list bookings where status confirmed",
			wantCmd: &command.Query{
				Table:   "bookings",
				Filters: []command.Filter{{Column: "status", Op: command.OpEq, Value: "confirmed"}},
				Sort:    []command.Sort{},
			},
			wantNotes: 1,
		},
		{
			name:      "unknown filter column dropped",
			text:      "list bookings where colour = red",
			wantCmd:   &command.Query{Table: "bookings", Filters: []command.Filter{}, Sort: []command.Sort{}},
			wantNotes: 1,
		},
		{
			name: "in filter",
			text: "find offers where id in (1, 2, 'x')",
			wantCmd: &command.Query{
				Table:   "offers",
				Filters: []command.Filter{{Column: "id", Op: command.OpIn, Value: []any{int64(1), int64(2), "x"}}},
				Sort:    []command.Sort{},
			},
		},
		{
			name: "insert with quoted and bare values",
			text: `insert into customers name="Ann Lee", email=ann@example.com, vip=true`,
			wantCmd: &command.Mutate{
				Action:  command.ActionInsert,
				Table:   "customers",
				Values:  map[string]any{"name": "Ann Lee", "email": "ann@example.com"},
				Filters: []command.Filter{},
			},
			wantNotes: 1,
		},
		{
			name: "forced action",
			text: "customers where id = 3",
			opts: Options{Action: command.ActionDelete},
			wantCmd: &command.Mutate{
				Action:  command.ActionDelete,
				Table:   "customers",
				Filters: []command.Filter{{Column: "id", Op: command.OpEq, Value: int64(3)}},
			},
		},
		{
			name: "detected table with projection of all columns",
			text: "get all from the staff members top 5",
			wantCmd: &command.Query{
				Table:   "staff_members",
				Filters: []command.Filter{},
				Sort:    []command.Sort{},
				Limit:   command.IntPtr(5),
			},
		},
	}
	tr := New(testCatalog(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tr.Translate(tt.text, tt.opts)
			require.True(t, res.Success, "%+v", res.Error)
			if diff := cmp.Diff(tt.wantCmd, res.Request.Command); diff != "" {
				t.Errorf("command mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, res.Notes, tt.wantNotes, "notes: %v", res.Notes)
		})
	}
}

func TestTranslateScope(t *testing.T) {
	tr := New(testCatalog(), nil)
	scope := command.Scope{BizID: "biz_1", ActorUserID: "u_9"}

	res := tr.Translate("list bookings", Options{Scope: scope, IdempotencyKey: "k1"})

	require.True(t, res.Success)
	assert.Equal(t, scope, res.Request.Scope)
	assert.Equal(t, "k1", res.Request.IdempotencyKey)
}

// Every successful translation re-validates and survives a JSON round trip.
func TestTranslateRoundTripProperty(t *testing.T) {
	tr := New(testCatalog(), nil)
	verbs := []string{"show", "list", "delete from", "update", "insert into", "remove", "find", "add to"}
	tables := []string{"customers", "bookings", "offers", "Customer", "booking", "price rules", "widgets"}
	clauses := []string{
		"", " where id = 1", " where status in (a, b)", " where created_at is null",
		" set status=closed where id=2", " name=Bob", " where name like 'A%' and id >= 3",
		" order by id asc", " limit 3", " where status open", " where nope = 1",
	}

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.SampledFrom(verbs).Draw(t, "verb") + " " +
			rapid.SampledFrom(tables).Draw(t, "table") +
			rapid.SampledFrom(clauses).Draw(t, "clause")

		res := tr.Translate(text, Options{})
		if res.Confidence < 0.05 || res.Confidence > 0.99 {
			t.Fatalf("confidence %v out of range for %q", res.Confidence, text)
		}
		if !res.Success {
			if res.Error == nil {
				t.Fatalf("failed translation of %q has no error", text)
			}
			return
		}
		if err := command.Validate(res.Request.Command); err != nil {
			t.Fatalf("translated command for %q does not validate: %v", text, err)
		}
		raw, err := json.Marshal(res.Request)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := command.DecodeEnvelope(raw); err != nil {
			t.Fatalf("envelope for %q does not decode: %v", text, err)
		}
	})
}
