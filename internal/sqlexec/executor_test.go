// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRows serves canned rows. Methods the executor does not use are left to
// the embedded nil interface.
type fakeRows struct {
	pgx.Rows
	cols []string
	data [][]any
	tag  string
	err  error
	i    int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag(r.tag) }
func (r *fakeRows) Next() bool {
	if r.err != nil || r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Values() ([]any, error) { return r.data[r.i-1], nil }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		out[i] = pgconn.FieldDescription{Name: c}
	}
	return out
}

type fakeTx struct {
	pgx.Tx
	results    []*fakeRows
	queries    []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	tx.queries = append(tx.queries, sql)
	tx.args = append(tx.args, args)
	r := tx.results[len(tx.queries)-1]
	return r, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx    *fakeTx
	begun int
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	db.begun++
	return db.tx, nil
}

func newExecutor(tx *fakeTx) (*Executor, *fakeDB) {
	db := &fakeDB{tx: tx}
	return New(db, testTables(), "", zap.NewNop()), db
}

func TestExecuteQuery(t *testing.T) {
	tx := &fakeTx{results: []*fakeRows{{
		cols: []string{"id", "name"},
		data: [][]any{{int64(1), "Ann"}, {int64(2), "Bob"}},
		tag:  "SELECT 2",
	}}}
	exec, _ := newExecutor(tx)

	env := command.NewEnvelope(&command.Query{Table: "customers", Filters: []command.Filter{}}, command.EnvelopeOptions{Scope: command.Scope{BizID: "biz_1"}})
	resp := exec.Execute(context.Background(), env)

	require.True(t, resp.Success, resp.Error)
	assert.True(t, tx.committed)
	assert.Equal(t, []string{`SELECT * FROM "customers" WHERE "biz_id" = $1`}, tx.queries)
	res, ok := resp.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, int64(2), res.RowCount)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "Ann"}, {"id": int64(2), "name": "Bob"}}, res.Rows)
	require.Len(t, resp.Trace, 1)
	assert.Equal(t, command.ActionQuery, resp.Trace[0].Action)
	assert.Equal(t, "customers", resp.Trace[0].Table)
}

func TestExecuteRendersBinaryColumns(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	digest := make([]byte, 16)
	tx := &fakeTx{results: []*fakeRows{{
		cols: []string{"id", "digest"},
		data: [][]any{{id, digest}},
		tag:  "SELECT 1",
	}}}
	exec, _ := newExecutor(tx)

	env := command.NewEnvelope(&command.Query{Table: "customers", Filters: []command.Filter{}}, command.EnvelopeOptions{Scope: command.Scope{BizID: "biz_1"}})
	resp := exec.Execute(context.Background(), env)

	require.True(t, resp.Success, resp.Error)
	res, ok := resp.Result.(Result)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{{
		"id":     "12345678-9abc-def0-0102-030405060708",
		"digest": `\x00000000000000000000000000000000`,
	}}, res.Rows)
}

func TestExecuteBatchDryRun(t *testing.T) {
	tx := &fakeTx{results: []*fakeRows{
		{cols: []string{"id"}, data: [][]any{{int64(7)}}, tag: "INSERT 0 1"},
		{cols: []string{"id"}, data: [][]any{{int64(7)}}, tag: "DELETE 1"},
	}}
	exec, _ := newExecutor(tx)

	cmd := &command.Batch{Steps: []command.Command{
		&command.Mutate{Action: command.ActionInsert, Table: "tags", Values: map[string]any{"label": "x"}, Filters: []command.Filter{}},
		&command.Batch{Steps: []command.Command{
			&command.Mutate{Action: command.ActionDelete, Table: "tags", Filters: []command.Filter{{Column: "id", Op: command.OpEq, Value: int64(7)}}},
		}},
	}}
	resp := exec.Execute(context.Background(), command.NewEnvelope(cmd, command.EnvelopeOptions{DryRun: true}))

	require.True(t, resp.Success, resp.Error)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Len(t, tx.queries, 2)
	batch, ok := resp.Result.(BatchResult)
	require.True(t, ok)
	require.Len(t, batch.Steps, 2)
	assert.Equal(t, int64(1), batch.Steps[1].RowCount)
	assert.Equal(t, []any{int64(7)}, tx.args[1])
}

func TestExecuteStatementError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "tags_label_key"`}
	tx := &fakeTx{results: []*fakeRows{
		{cols: []string{"id"}, data: [][]any{{int64(1)}}, tag: "INSERT 0 1"},
		{err: pgErr},
		{},
	}}
	exec, _ := newExecutor(tx)

	cmd := &command.Batch{Steps: []command.Command{
		&command.Mutate{Action: command.ActionInsert, Table: "tags", Values: map[string]any{"label": "a"}, Filters: []command.Filter{}},
		&command.Mutate{Action: command.ActionInsert, Table: "tags", Values: map[string]any{"label": "a"}, Filters: []command.Filter{}},
		&command.Query{Table: "tags", Filters: []command.Filter{}},
	}}
	resp := exec.Execute(context.Background(), command.NewEnvelope(cmd, command.EnvelopeOptions{}))

	assert.False(t, resp.Success)
	assert.Len(t, tx.queries, 2)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
	assert.Contains(t, resp.Error, "EXECUTION_ERROR: insert on tags failed")
	assert.Contains(t, resp.Error, "violates unique constraint")
	assert.Len(t, resp.Trace, 2)
}

func TestExecuteRejectsBeforeBegin(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
		want string
	}{
		{"invalid envelope", &command.Mutate{Action: command.ActionInsert, Table: "tags", Filters: []command.Filter{}}, "VALIDATION_ERROR"},
		{"unsafe mutation", &command.Mutate{Action: command.ActionDelete, Table: "tags", Filters: []command.Filter{}}, "UNSAFE_MUTATION"},
		{"unknown table in batch", &command.Batch{Steps: []command.Command{
			&command.Query{Table: "tags", Filters: []command.Filter{}},
			&command.Query{Table: "widgets", Filters: []command.Filter{}},
		}}, "UNKNOWN_TABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, db := newExecutor(&fakeTx{})
			resp := exec.Execute(context.Background(), command.NewEnvelope(tt.cmd, command.EnvelopeOptions{}))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.want)
			assert.Equal(t, 0, db.begun)
			assert.NotNil(t, resp.Trace)
		})
	}
}

type failingDB struct{}

func (failingDB) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("connection refused") }

func TestExecuteBeginError(t *testing.T) {
	exec := New(failingDB{}, testTables(), "", nil)
	resp := exec.Execute(context.Background(), command.NewEnvelope(&command.Query{Table: "tags", Filters: []command.Filter{}}, command.EnvelopeOptions{}))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "begin transaction failed: connection refused")
}

func TestExecuteEnumHint(t *testing.T) {
	tables := catalog.NewSnapshot([]catalog.TableInfo{{
		Name:       "customers",
		Columns:    []string{"id", "name", "status", "tier"},
		EnumValues: map[string][]string{"status": {"active", "paused"}, "tier": {"gold", "silver"}},
	}})
	tests := []struct {
		name string
		err  error
		want string
		not  string
	}{
		{
			name: "check violation lists written enum columns",
			err:  &pgconn.PgError{Code: "23514", Message: `new row violates check constraint "customers_status_check"`},
			want: "; allowed values for status: active, paused",
			not:  "tier",
		},
		{
			name: "invalid enum input names its column",
			err:  &pgconn.PgError{Code: "22P02", Message: "invalid input value for enum", ColumnName: "tier"},
			want: "; allowed values for tier: gold, silver",
			not:  "status",
		},
		{
			name: "other errors are left alone",
			err:  &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			not:  "allowed values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &fakeTx{results: []*fakeRows{{err: tt.err}}}
			exec := New(&fakeDB{tx: tx}, tables, "", nil)
			cmd := &command.Mutate{Action: command.ActionInsert, Table: "customers", Values: map[string]any{"name": "Ann", "status": "gone"}, Filters: []command.Filter{}}
			resp := exec.Execute(context.Background(), command.NewEnvelope(cmd, command.EnvelopeOptions{}))

			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, "EXECUTION_ERROR: insert on customers failed")
			if tt.want != "" {
				assert.True(t, strings.HasSuffix(resp.Error, tt.want), resp.Error)
			}
			assert.NotContains(t, resp.Error, tt.not)
		})
	}
}
