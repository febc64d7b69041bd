// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package translator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"agentfit/cli/internal/catalog"
	"agentfit/cli/internal/command"
)

// Each rule below handles one piece of the sentence grammar and can be
// exercised on its own.

var (
	reDelete = regexp.MustCompile(`\b(delete|remove)\b`)
	reUpdate = regexp.MustCompile(`\b(update|set|change|mark)\b`)
	reInsert = regexp.MustCompile(`\b(create|add|insert|upsert)\b`)
)

// inferAction picks the action from keywords in the sentence.
func inferAction(text string) command.Action {
	lower := strings.ToLower(text)
	switch {
	case reDelete.MatchString(lower):
		return command.ActionDelete
	case reUpdate.MatchString(lower):
		return command.ActionUpdate
	case reInsert.MatchString(lower):
		return command.ActionInsert
	}
	return command.ActionQuery
}

// tablePatterns are tried in order; the first capture that resolves wins.
var tablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfrom\s+(.+)`),
	regexp.MustCompile(`(?i)\binto\s+(.+)`),
	regexp.MustCompile(`(?i)\bupdate\s+(.+)`),
	regexp.MustCompile(`(?i)\bdelete\s+from\s+(.+)`),
	regexp.MustCompile(`(?i)\btable\s+(.+)`),
}

var (
	rePhraseStop = regexp.MustCompile(`(?i)\s+(?:where|set|with|values|order|limit|top|first|and|having|whose|that|which|to|by|for)\b|[,;()=:<>!]`)
	reArticle    = regexp.MustCompile(`(?i)^(?:the|a|an|all|my|every)\s+`)
)

// tablePhrases returns the candidate table phrases named by explicit grammar,
// in pattern order.
func tablePhrases(text string) []string {
	var out []string
	for _, re := range tablePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if p := cutPhrase(m[1]); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// cutPhrase trims a captured table phrase at the first clause keyword and keeps
// at most three words.
func cutPhrase(s string) string {
	if loc := rePhraseStop.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = reArticle.ReplaceAllString(strings.TrimSpace(s), "")
	fields := strings.Fields(s)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}

// resolvePhrase resolves a phrase, falling back to its first word.
func resolvePhrase(cat catalog.Catalog, phrase string) (string, bool) {
	if t, ok := cat.ResolveTableName(phrase); ok {
		return t, true
	}
	if first, _, found := strings.Cut(phrase, " "); found {
		return cat.ResolveTableName(first)
	}
	return "", false
}

var (
	reWhere  = regexp.MustCompile(`(?i)\bwhere\s+(.+?)(?:\s+order\s+by\b|\s+limit\b|\s+top\b|\s+first\s+\d|$)`)
	reAnd    = regexp.MustCompile(`(?i)\s+and\s+`)
	reIn     = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+in\s*\((.*)\)$`)
	reIsNull = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+is\s+(not\s+)?null$`)
	reCmp    = regexp.MustCompile(`^([A-Za-z_][\w.]*)\s*(>=|<=|!=|<>|=|>|<)\s*(.+)$`)
	reLike   = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+(i?like)\s+(.+)$`)
	reLoose  = regexp.MustCompile(`^([A-Za-z_][\w.]*)\s+(.+)$`)
)

var cmpOps = map[string]command.Op{
	"=":  command.OpEq,
	"!=": command.OpNeq,
	"<>": command.OpNeq,
	">":  command.OpGt,
	">=": command.OpGte,
	"<":  command.OpLt,
	"<=": command.OpLte,
}

// whereClause returns the text of the where clause, if any.
func whereClause(text string) (string, bool) {
	m := reWhere.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// condition is one parsed where-clause term before column resolution.
type condition struct {
	column string
	op     command.Op
	value  any
	// loose is set for "COL VALUE" terms without an operator.
	loose bool
}

// parseCondition parses one term of a where clause.
func parseCondition(term string) (condition, bool) {
	term = strings.TrimSpace(term)
	if m := reIn.FindStringSubmatch(term); m != nil {
		values := []any{}
		for _, v := range strings.Split(m[2], ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, parsePrimitive(v))
			}
		}
		return condition{column: m[1], op: command.OpIn, value: values}, true
	}
	if m := reIsNull.FindStringSubmatch(term); m != nil {
		op := command.OpIsNull
		if m[2] != "" {
			op = command.OpNotNull
		}
		return condition{column: m[1], op: op}, true
	}
	if m := reCmp.FindStringSubmatch(term); m != nil {
		return condition{column: m[1], op: cmpOps[m[2]], value: parsePrimitive(m[3])}, true
	}
	if m := reLike.FindStringSubmatch(term); m != nil {
		op := command.OpLike
		if strings.EqualFold(m[2], "ilike") {
			op = command.OpILike
		}
		return condition{column: m[1], op: op, value: parsePrimitive(m[3])}, true
	}
	if m := reLoose.FindStringSubmatch(term); m != nil {
		return condition{column: m[1], op: command.OpEq, value: parsePrimitive(m[2]), loose: true}, true
	}
	return condition{}, false
}

// parseFilters parses the where clause of text into filters on table. Terms
// naming unknown columns are dropped with a note.
func parseFilters(cat catalog.Catalog, table, text string) ([]command.Filter, []string) {
	filters := []command.Filter{}
	var notes []string
	clause, ok := whereClause(text)
	if !ok {
		return filters, notes
	}
	for _, term := range reAnd.Split(clause, -1) {
		c, ok := parseCondition(term)
		if !ok {
			notes = append(notes, fmt.Sprintf("Could not parse condition %q", strings.TrimSpace(term)))
			continue
		}
		col, ok := cat.ResolveColumnName(table, c.column)
		if !ok {
			notes = append(notes, fmt.Sprintf("Ignored filter on unknown column %q", c.column))
			continue
		}
		if c.loose {
			notes = append(notes, fmt.Sprintf("Interpreted %q as %s = %s", strings.TrimSpace(term), col, formatValue(c.value)))
		}
		f := command.Filter{Column: col, Op: c.op}
		if c.op.TakesValue() {
			f.Value = c.value
		}
		filters = append(filters, f)
	}
	return filters, notes
}

var reLimit = regexp.MustCompile(`(?i)\b(?:limit|top|first)\s+(\d+)\b`)

// parseLimit reads "limit N", "top N" or "first N".
func parseLimit(text string) (int, bool) {
	m := reLimit.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var reOrder = regexp.MustCompile(`(?i)\border\s+by\s+([A-Za-z_][\w.]*)(?:\s+(asc|desc)\b)?`)

// parseOrder reads "order by COL [asc|desc]".
func parseOrder(cat catalog.Catalog, table, text string) ([]command.Sort, []string) {
	m := reOrder.FindStringSubmatch(text)
	if m == nil {
		return []command.Sort{}, nil
	}
	col, ok := cat.ResolveColumnName(table, m[1])
	if !ok {
		return []command.Sort{}, []string{fmt.Sprintf("Ignored ordering by unknown column %q", m[1])}
	}
	dir := command.Asc
	if strings.EqualFold(m[2], "desc") {
		dir = command.Desc
	}
	return []command.Sort{{Column: col, Direction: dir}}, nil
}

var (
	reProjection = regexp.MustCompile(`(?i)^\s*(?:show|list|get|fetch|find)\s+(.+?)\s+from\b`)
	reLeadFiller = regexp.MustCompile(`(?i)^(?:me\s+)?(?:the\s+)?`)
	reColumnSep  = regexp.MustCompile(`(?i)\s*,\s*|\s+and\s+`)
	reAllColumns = regexp.MustCompile(`(?i)^(?:all|\*|everything)$`)
)

// parseProjection reads "show COL[, COL] from". A nil result selects every column.
func parseProjection(cat catalog.Catalog, table, text string) []string {
	m := reProjection.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	segment := strings.TrimSpace(reLeadFiller.ReplaceAllString(m[1], ""))
	if segment == "" || reAllColumns.MatchString(segment) {
		return nil
	}
	var cols []string
	seen := make(map[string]bool)
	for _, part := range reColumnSep.Split(segment, -1) {
		if col, ok := cat.ResolveColumnName(table, part); ok && !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	return cols
}

var reAssignment = regexp.MustCompile(`(?:^|[,\s])([A-Za-z_][\w.]*)\s*(=|:)\s*("[^"]*"|'[^']*'|[^,\s]+)`)

// parseAssignments reads every COL=VALUE or COL: VALUE pair in text. Unknown
// columns are dropped with a note.
func parseAssignments(cat catalog.Catalog, table, text string) (map[string]any, []string) {
	values := map[string]any{}
	var notes []string
	for _, m := range reAssignment.FindAllStringSubmatch(text, -1) {
		col, ok := cat.ResolveColumnName(table, m[1])
		if !ok {
			notes = append(notes, fmt.Sprintf("Ignored value for unknown column %q", m[1]))
			continue
		}
		values[col] = parsePrimitive(m[3])
	}
	return values, notes
}

var reSet = regexp.MustCompile(`(?i)\bset\s+(.+?)(?:\s+where\b|$)`)

// setClause returns the assignment text of an update.
func setClause(text string) string {
	m := reSet.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

var reNumber = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// parsePrimitive strips surrounding quotes and types null, booleans and numbers.
// Integral numbers become int64, others float64.
func parsePrimitive(raw string) any {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if m := reNumber.FindStringSubmatch(s); m != nil {
		if m[1] == "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}

// confidence scores a translation. The weights are fixed; the score explains
// a result, it does not gate it.
func confidence(tableResolved bool, action command.Action, notes int) float64 {
	c := 0.45
	if tableResolved {
		c += 0.25
	}
	if action != command.ActionQuery {
		c += 0.10
	}
	c -= 0.05 * float64(notes)
	c = min(max(c, 0.05), 0.99)
	return math.Round(c*100) / 100
}
