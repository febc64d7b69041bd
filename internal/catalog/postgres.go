// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Querier is the subset of *pgxpool.Pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	columnsQuery = `
		SELECT c.table_name, c.column_name
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY c.table_name, c.ordinal_position`

	primaryKeysQuery = `
		SELECT kc.table_name, kc.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
		  ON tc.constraint_name = kc.constraint_name AND tc.table_schema = kc.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kc.table_name, kc.ordinal_position`

	checkConstraintsQuery = `
		SELECT ccu.table_name, ccu.column_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.constraint_column_usage ccu
		  ON cc.constraint_name = ccu.constraint_name AND cc.constraint_schema = ccu.constraint_schema
		WHERE cc.constraint_schema = $1`

	enumTypesQuery = `
		SELECT c.table_name, c.column_name, e.enumlabel
		FROM information_schema.columns c
		JOIN pg_type t ON t.typname = c.udt_name
		JOIN pg_enum e ON e.enumtypid = t.oid
		WHERE c.table_schema = $1
		ORDER BY c.table_name, c.column_name, e.enumsortorder`
)

// LoadPostgres reads tables, columns, primary keys and enum-like value sets of
// one schema. Missing constraint metadata is logged and skipped; a failure to
// list columns is fatal.
func LoadPostgres(ctx context.Context, q Querier, schema string, log *zap.Logger) (*Snapshot, error) {
	if schema == "" {
		schema = "public"
	}
	if log == nil {
		log = zap.NewNop()
	}

	byName := make(map[string]*TableInfo)
	var order []string
	get := func(name string) *TableInfo {
		t, ok := byName[name]
		if !ok {
			t = &TableInfo{Name: name, EnumValues: make(map[string][]string)}
			byName[name] = t
			order = append(order, name)
		}
		return t
	}

	if err := eachRow(ctx, q, columnsQuery, schema, func(rows pgx.Rows) error {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return err
		}
		t := get(table)
		t.Columns = append(t.Columns, col)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list columns of schema %q: %w", schema, err)
	}

	if err := eachRow(ctx, q, primaryKeysQuery, schema, func(rows pgx.Rows) error {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.PrimaryKey = append(t.PrimaryKey, col)
		}
		return nil
	}); err != nil {
		log.Debug("primary keys unavailable", zap.String("schema", schema), zap.Error(err))
	}

	if err := eachRow(ctx, q, checkConstraintsQuery, schema, func(rows pgx.Rows) error {
		var table, col, clause string
		if err := rows.Scan(&table, &col, &clause); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			if vals := extractEnumValues(clause); len(vals) > 0 {
				t.EnumValues[col] = vals
			}
		}
		return nil
	}); err != nil {
		log.Debug("check constraints unavailable", zap.String("schema", schema), zap.Error(err))
	}

	if err := eachRow(ctx, q, enumTypesQuery, schema, func(rows pgx.Rows) error {
		var table, col, label string
		if err := rows.Scan(&table, &col, &label); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.EnumValues[col] = append(t.EnumValues[col], label)
		}
		return nil
	}); err != nil {
		log.Debug("enum types unavailable", zap.String("schema", schema), zap.Error(err))
	}

	tables := make([]TableInfo, 0, len(order))
	for _, name := range order {
		tables = append(tables, *byName[name])
	}
	log.Debug("catalog loaded", zap.String("schema", schema), zap.Int("tables", len(tables)))
	return NewSnapshot(tables), nil
}

func eachRow(ctx context.Context, q Querier, sql, schema string, fn func(pgx.Rows) error) error {
	rows, err := q.Query(ctx, sql, schema)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

var (
	reCheckIn  = regexp.MustCompile(`(?i)\bIN\s*\(\s*([^)]+)\)`)
	reCheckAny = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*(?:\(\s*)?ARRAY\s*\[([^\]]+)\]`)
)

// extractEnumValues extracts the allowed values of check clauses such as
// "status IN ('queued','running')" or
// "status = ANY (ARRAY['queued'::text, 'running'::text])".
func extractEnumValues(clause string) []string {
	for _, re := range []*regexp.Regexp{reCheckAny, reCheckIn} {
		if m := re.FindStringSubmatch(clause); len(m) > 1 {
			return parseEnumValueList(m[1])
		}
	}
	return nil
}

func parseEnumValueList(list string) []string {
	var out []string
	for _, v := range strings.Split(list, ",") {
		v = strings.TrimSpace(v)
		if i := strings.Index(v, "::"); i >= 0 {
			v = v[:i]
		}
		v = strings.Trim(strings.TrimSpace(v), "'\"()")
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
