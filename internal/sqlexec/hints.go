// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes that usually mean a value outside an enum or a
// CHECK (col IN (...)) list.
const (
	codeCheckViolation   = "23514"
	codeInvalidTextValue = "22P02"
)

// hint names the allowed values of the written columns when err looks like a
// rejected enum value. It returns "" when there is nothing useful to add.
func (e *Executor) hint(st Statement, err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	if pgErr.Code != codeCheckViolation && pgErr.Code != codeInvalidTextValue {
		return ""
	}
	t, ok := e.tables.Table(st.Table)
	if !ok || len(t.EnumValues) == 0 {
		return ""
	}

	cols := st.Columns
	if pgErr.ColumnName != "" {
		cols = []string{pgErr.ColumnName}
	}
	var parts []string
	for _, c := range cols {
		if vals := t.EnumValues[c]; len(vals) > 0 {
			parts = append(parts, fmt.Sprintf("allowed values for %s: %s", c, strings.Join(vals, ", ")))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "; " + strings.Join(parts, "; ")
}
