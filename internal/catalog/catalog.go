// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package catalog maps loosely written table and column names onto the live
// database schema.
//
// The translator never trusts a name it extracted from free text: every table
// and column goes through a Catalog first. Resolution is forgiving about case,
// spacing, camelCase, schema prefixes, singular/plural forms and configured
// aliases, but it only ever answers with a name that exists in the snapshot.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Catalog resolves names against a known schema.
type Catalog interface {
	// ResolveTableName maps a loose name onto a known table.
	ResolveTableName(name string) (string, bool)
	// ResolveColumnName maps a loose name onto a column of table.
	ResolveColumnName(table, name string) (string, bool)
	// DetectTablesInText returns tables confidently named anywhere in text,
	// in order of first appearance.
	DetectTablesInText(text string, limit int) []string
	// SuggestTables ranks every known table by similarity to the words of text.
	SuggestTables(text string, limit int) []string
	// HasTable reports whether name is a known table, exactly as spelled.
	HasTable(name string) bool
	// Tables lists known tables in alphabetical order.
	Tables() []string
}

// TableInfo describes one table.
type TableInfo struct {
	Name          string              `json:"name" yaml:"name"`
	Columns       []string            `json:"columns" yaml:"columns"`
	PrimaryKey    []string            `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	EnumValues    map[string][]string `json:"enumValues,omitempty" yaml:"enumValues,omitempty"`
	Aliases       []string            `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	ColumnAliases map[string]string   `json:"columnAliases,omitempty" yaml:"columnAliases,omitempty"`
}

// HasColumn reports whether the table has column c.
func (t TableInfo) HasColumn(c string) bool {
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// Snapshot is an immutable, in-memory Catalog.
type Snapshot struct {
	tables  map[string]TableInfo
	aliases map[string]string
	names   []string
}

var _ Catalog = (*Snapshot)(nil)

// NewSnapshot indexes tables. Table aliases are normalized the same way lookups are.
func NewSnapshot(tables []TableInfo) *Snapshot {
	s := &Snapshot{
		tables:  make(map[string]TableInfo, len(tables)),
		aliases: make(map[string]string),
	}
	for _, t := range tables {
		s.tables[t.Name] = t
		s.names = append(s.names, t.Name)
		for _, a := range t.Aliases {
			s.aliases[normalize(a)] = t.Name
		}
	}
	sort.Strings(s.names)
	return s
}

// Table returns the description of a known table.
func (s *Snapshot) Table(name string) (TableInfo, bool) {
	t, ok := s.tables[name]
	return t, ok
}

func (s *Snapshot) Tables() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.tables[name]
	return ok
}

func (s *Snapshot) ResolveTableName(name string) (string, bool) {
	n := normalize(name)
	if n == "" {
		return "", false
	}
	for _, c := range inflections(n) {
		if _, ok := s.tables[c]; ok {
			return c, true
		}
		if t, ok := s.aliases[c]; ok {
			return t, true
		}
	}
	return "", false
}

func (s *Snapshot) ResolveColumnName(table, name string) (string, bool) {
	t, ok := s.tables[table]
	if !ok {
		resolved, found := s.ResolveTableName(table)
		if !found {
			return "", false
		}
		t = s.tables[resolved]
	}
	n := normalize(name)
	if n == "" {
		return "", false
	}
	aliases := make(map[string]string, len(t.ColumnAliases))
	for a, col := range t.ColumnAliases {
		aliases[normalize(a)] = col
	}
	for _, c := range append(inflections(n), n+"_id") {
		if t.HasColumn(c) {
			return c, true
		}
		if col, ok := aliases[c]; ok && t.HasColumn(col) {
			return col, true
		}
	}
	return "", false
}

var (
	reSeparators = regexp.MustCompile(`[\s\-]+`)
	reUnderscore = regexp.MustCompile(`_+`)
)

// normalize lowercases a loose identifier into snake_case and drops quoting
// and any schema qualifier.
func normalize(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Trim(s, "\"'`")
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	s = snakeCase(s)
	s = reSeparators.ReplaceAllString(s, "_")
	s = reUnderscore.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inflections returns n followed by its likely singular and plural forms.
func inflections(n string) []string {
	out := []string{n}
	switch {
	case strings.HasSuffix(n, "ies") && len(n) > 3:
		out = append(out, n[:len(n)-3]+"y")
	case strings.HasSuffix(n, "es") && len(n) > 2:
		out = append(out, n[:len(n)-1], n[:len(n)-2])
	case strings.HasSuffix(n, "s") && len(n) > 1:
		out = append(out, n[:len(n)-1])
	case strings.HasSuffix(n, "y") && len(n) > 1:
		out = append(out, n+"s", n[:len(n)-1]+"ies")
	default:
		out = append(out, n+"s", n+"es")
	}
	return out
}
