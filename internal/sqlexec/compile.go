// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"sort"
	"strings"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"
	apperr "agentfit/cli/internal/errors"

	"github.com/jackc/pgx/v5"
)

// Tables describes the tables an executor may touch. *catalog.Snapshot implements it.
type Tables interface {
	Table(name string) (catalog.TableInfo, bool)
}

// Statement is one compiled SQL statement with positional arguments.
type Statement struct {
	Action command.Action
	Table  string
	SQL    string
	Args   []any
	// Columns written by an insert or update.
	Columns []string
}

// Scope columns filtered on and defaulted when a table carries them.
const (
	bizColumn      = "biz_id"
	locationColumn = "location_id"
)

type compiler struct {
	schema string
	tables Tables
	scope  command.Scope
}

// compile turns a Query or Mutate into SQL. Every identifier is checked
// against the catalog and quoted; every value is a bind argument.
func (c compiler) compile(cmd command.Command) (Statement, error) {
	switch cmd := cmd.(type) {
	case *command.Query:
		return c.query(cmd)
	case *command.Mutate:
		return c.mutate(cmd)
	}
	return Statement{}, apperr.Newf(apperr.ExecutionError, "cannot compile %s command", cmd.Kind())
}

func (c compiler) table(name string) (catalog.TableInfo, string, error) {
	t, ok := c.tables.Table(name)
	if !ok {
		return catalog.TableInfo{}, "", apperr.Newf(apperr.UnknownTable, "unknown table '%s'", name)
	}
	id := pgx.Identifier{t.Name}
	if c.schema != "" {
		id = pgx.Identifier{c.schema, t.Name}
	}
	return t, id.Sanitize(), nil
}

func column(t catalog.TableInfo, name string) (string, error) {
	if !t.HasColumn(name) {
		return "", apperr.Newf(apperr.UnknownColumn, "unknown column '%s' on table %s", name, t.Name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func columnList(t catalog.TableInfo, names []string) (string, error) {
	if len(names) == 0 {
		return "*", nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		col, err := column(t, n)
		if err != nil {
			return "", err
		}
		out = append(out, col)
	}
	return strings.Join(out, ", "), nil
}

// scoped appends the scope filters the table supports.
func (c compiler) scoped(t catalog.TableInfo, filters []command.Filter) []command.Filter {
	out := append([]command.Filter(nil), filters...)
	if c.scope.BizID != "" && t.HasColumn(bizColumn) {
		out = append(out, command.Filter{Column: bizColumn, Op: command.OpEq, Value: c.scope.BizID})
	}
	if c.scope.LocationID != "" && t.HasColumn(locationColumn) {
		out = append(out, command.Filter{Column: locationColumn, Op: command.OpEq, Value: c.scope.LocationID})
	}
	return out
}

var sqlOps = map[command.Op]string{
	command.OpEq:    "=",
	command.OpNeq:   "<>",
	command.OpGt:    ">",
	command.OpGte:   ">=",
	command.OpLt:    "<",
	command.OpLte:   "<=",
	command.OpLike:  "LIKE",
	command.OpILike: "ILIKE",
}

// where renders filters as a WHERE clause, appending bind values to args.
func where(t catalog.TableInfo, filters []command.Filter, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		col, err := column(t, f.Column)
		if err != nil {
			return "", nil, err
		}
		switch {
		case f.Op == command.OpIsNull, f.Op == command.OpEq && f.Value == nil:
			parts = append(parts, col+" IS NULL")
		case f.Op == command.OpNotNull, f.Op == command.OpNeq && f.Value == nil:
			parts = append(parts, col+" IS NOT NULL")
		case f.Op == command.OpIn:
			args = append(args, f.Value)
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
		default:
			op, ok := sqlOps[f.Op]
			if !ok {
				return "", nil, apperr.Newf(apperr.ValidationError, "unsupported operator %q", f.Op)
			}
			args = append(args, f.Value)
			parts = append(parts, fmt.Sprintf("%s %s $%d", col, op, len(args)))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (c compiler) query(q *command.Query) (Statement, error) {
	t, table, err := c.table(q.Table)
	if err != nil {
		return Statement{}, err
	}
	cols, err := columnList(t, q.Select)
	if err != nil {
		return Statement{}, err
	}
	clause, args, err := where(t, c.scoped(t, q.Filters), nil)
	if err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", cols, table, clause)
	if len(q.Sort) > 0 {
		order := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			col, err := column(t, s.Column)
			if err != nil {
				return Statement{}, err
			}
			dir := "ASC"
			if s.Direction == command.Desc {
				dir = "DESC"
			}
			order = append(order, col+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if q.Limit != nil {
		args = append(args, *q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset != nil {
		args = append(args, *q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return Statement{Action: command.ActionQuery, Table: t.Name, SQL: b.String(), Args: args}, nil
}

func (c compiler) mutate(m *command.Mutate) (Statement, error) {
	t, table, err := c.table(m.Table)
	if err != nil {
		return Statement{}, err
	}
	if (m.Action == command.ActionUpdate || m.Action == command.ActionDelete) && len(m.Filters) == 0 {
		return Statement{}, apperr.Newf(apperr.UnsafeMutation, "refusing to %s %s without filters", m.Action, t.Name)
	}
	returning, err := columnList(t, m.Returning)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{Action: m.Action, Table: t.Name}
	switch m.Action {
	case command.ActionInsert:
		values := c.insertDefaults(t, m.Values)
		names := sortedKeys(values)
		cols := make([]string, 0, len(names))
		marks := make([]string, 0, len(names))
		for _, n := range names {
			col, err := column(t, n)
			if err != nil {
				return Statement{}, err
			}
			st.Args = append(st.Args, values[n])
			st.Columns = append(st.Columns, n)
			cols = append(cols, col)
			marks = append(marks, fmt.Sprintf("$%d", len(st.Args)))
		}
		st.SQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table, strings.Join(cols, ", "), strings.Join(marks, ", "), returning)

	case command.ActionUpdate:
		names := sortedKeys(m.Values)
		sets := make([]string, 0, len(names))
		for _, n := range names {
			col, err := column(t, n)
			if err != nil {
				return Statement{}, err
			}
			st.Args = append(st.Args, m.Values[n])
			st.Columns = append(st.Columns, n)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(st.Args)))
		}
		clause, args, err := where(t, c.scoped(t, m.Filters), st.Args)
		if err != nil {
			return Statement{}, err
		}
		st.Args = args
		st.SQL = fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s", table, strings.Join(sets, ", "), clause, returning)

	case command.ActionDelete:
		clause, args, err := where(t, c.scoped(t, m.Filters), nil)
		if err != nil {
			return Statement{}, err
		}
		st.Args = args
		st.SQL = fmt.Sprintf("DELETE FROM %s%s RETURNING %s", table, clause, returning)

	default:
		return Statement{}, apperr.Newf(apperr.ValidationError, "unsupported action %q", m.Action)
	}
	return st, nil
}

// insertDefaults fills scope columns the payload left out.
func (c compiler) insertDefaults(t catalog.TableInfo, values map[string]any) map[string]any {
	out := make(map[string]any, len(values)+2)
	for k, v := range values {
		out[k] = v
	}
	if _, set := out[bizColumn]; !set && c.scope.BizID != "" && t.HasColumn(bizColumn) {
		out[bizColumn] = c.scope.BizID
	}
	if _, set := out[locationColumn]; !set && c.scope.LocationID != "" && t.HasColumn(locationColumn) {
		out[locationColumn] = c.scope.LocationID
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
