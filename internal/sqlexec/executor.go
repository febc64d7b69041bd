// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec executes validated command envelopes against PostgreSQL over
// a pgx connection pool.
//
// Every envelope runs in one transaction. Batch steps run in order and the
// first failure aborts the batch. A dry run executes every statement and then
// rolls back, so constraint violations still surface without changing data.
//
// Key guarantees:
//   - Tables and columns are checked against the schema catalog and quoted
//   - Values are always bind arguments, never spliced into SQL
//   - Updates and deletes without filters are refused
//   - Scope ids become filters and insert defaults on tables that carry them
package sqlexec

import (
	"context"
	"fmt"
	"time"

	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"
	"agentfit/cli/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DB starts transactions. *pgxpool.Pool implements it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result is the outcome of one statement.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int64            `json:"rowCount"`
}

// BatchResult holds the results of a batch, one per statement in execution order.
type BatchResult struct {
	Steps []Result `json:"steps"`
}

// Executor executes envelopes in a transaction.
type Executor struct {
	db     DB
	tables Tables
	schema string
	log    *zap.Logger
}

var _ command.Executor = (*Executor)(nil)

// New creates an Executor. schema qualifies every table name when set.
func New(db DB, tables Tables, schema string, log *zap.Logger) *Executor {
	return &Executor{db: db, tables: tables, schema: schema, log: logging.OrNop(log)}
}

// Execute validates, compiles and runs env. Errors are reported in the response.
func (e *Executor) Execute(ctx context.Context, env command.Envelope) command.Response {
	if err := command.ValidateEnvelope(env); err != nil {
		return command.Failed(err)
	}

	stmts, err := e.plan(env)
	if err != nil {
		e.log.Debug("compile failed", zap.String("request_id", env.RequestID), zap.Error(err))
		return command.Failed(err)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return command.Failed(apperr.Wrap(apperr.ExecutionError, "begin transaction failed", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	resp := command.Response{Trace: make([]command.TraceEntry, 0, len(stmts))}
	results := make([]Result, 0, len(stmts))
	for _, st := range stmts {
		start := time.Now()
		res, err := run(ctx, tx, st)
		entry := command.TraceEntry{
			Action:     st.Action,
			Table:      st.Table,
			Statement:  st.SQL,
			Rows:       res.RowCount,
			DurationMs: time.Since(start).Milliseconds(),
		}
		resp.Trace = append(resp.Trace, entry)
		if err != nil {
			e.log.Debug("statement failed", zap.String("sql", st.SQL), zap.Error(err))
			msg := fmt.Sprintf("%s on %s failed", st.Action, st.Table)
			resp.Error = apperr.Wrap(apperr.ExecutionError, msg, err).Error() + e.hint(st, err)
			return resp
		}
		e.log.Debug("statement executed", zap.String("sql", st.SQL), zap.Int64("rows", res.RowCount))
		results = append(results, res)
	}

	if env.DryRun {
		e.log.Debug("dry run rolled back", zap.String("request_id", env.RequestID))
	} else if err := tx.Commit(ctx); err != nil {
		resp.Error = apperr.Wrap(apperr.ExecutionError, "commit failed", err).Error()
		return resp
	}

	resp.Success = true
	if _, isBatch := env.Command.(*command.Batch); isBatch {
		resp.Result = BatchResult{Steps: results}
	} else {
		resp.Result = results[0]
	}
	return resp
}

// plan compiles every leaf command before anything touches the database.
func (e *Executor) plan(env command.Envelope) ([]Statement, error) {
	c := compiler{schema: e.schema, tables: e.tables, scope: env.Scope}
	var stmts []Statement
	err := command.Walk(env.Command, func(cmd command.Command) error {
		if _, isBatch := cmd.(*command.Batch); isBatch {
			return nil
		}
		st, err := c.compile(cmd)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
		return nil
	})
	return stmts, err
}

func run(ctx context.Context, tx pgx.Tx, st Statement) (Result, error) {
	res := Result{Columns: []string{}, Rows: []map[string]any{}}
	rows, err := tx.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	for _, fd := range fds {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return res, err
		}
		row := make(map[string]any, len(vals))
		for i, v := range vals {
			if i < len(res.Columns) {
				row[res.Columns[i]] = jsonValue(v)
			}
		}
		res.Rows = append(res.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}
	res.RowCount = rows.CommandTag().RowsAffected()
	if res.RowCount == 0 {
		res.RowCount = int64(len(res.Rows))
	}
	return res, nil
}

// jsonValue converts pgx values that do not marshal usefully. pgx decodes uuid
// columns to [16]byte, rendered in canonical form. bytea arrives as []byte of
// any length and uses the Postgres hex escape format.
func jsonValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return fmt.Sprintf("\\x%x", t)
	}
	return v
}
