// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

var reWord = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "me": true, "my": true, "all": true, "any": true,
	"and": true, "or": true, "of": true, "for": true, "to": true, "in": true, "on": true,
	"by": true, "with": true, "from": true, "into": true, "where": true, "set": true,
	"show": true, "list": true, "get": true, "fetch": true, "find": true, "about": true,
	"everything": true, "is": true, "not": true, "null": true, "limit": true, "order": true,
	"top": true, "first": true, "please": true, "table": true, "every": true,
}

func words(text string) []string {
	var out []string
	for _, w := range reWord.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func (s *Snapshot) DetectTablesInText(text string, limit int) []string {
	toks := words(text)
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for i := 0; i < len(toks) && (limit <= 0 || len(out) < limit); i++ {
		if i+1 < len(toks) {
			if t, ok := s.ResolveTableName(toks[i] + "_" + toks[i+1]); ok {
				add(t)
				i++
				continue
			}
		}
		if len(toks[i]) < 3 {
			continue
		}
		if t, ok := s.ResolveTableName(toks[i]); ok {
			add(t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SuggestTables always returns min(limit, len(Tables())) names. Tables whose
// letters appear in order inside a word of text, or the other way round, rank
// first; the rest are ordered by edit distance and then name.
func (s *Snapshot) SuggestTables(text string, limit int) []string {
	toks := words(text)
	type scored struct {
		name  string
		score float64
	}
	bonus := make(map[string]bool)
	for _, tok := range toks {
		for _, r := range fuzzy.RankFindNormalizedFold(tok, s.names) {
			bonus[r.Target] = true
		}
		for _, name := range s.names {
			if fuzzy.MatchNormalizedFold(name, tok) {
				bonus[name] = true
			}
		}
	}

	ranked := make([]scored, 0, len(s.names))
	for _, name := range s.names {
		best := 1.0
		for _, tok := range toks {
			d := float64(fuzzy.LevenshteinDistance(tok, name))
			if m := float64(max(len(tok), len(name))); m > 0 {
				d /= m
			}
			if d < best {
				best = d
			}
		}
		if bonus[name] {
			best -= 1
		}
		ranked = append(ranked, scored{name, best})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.name)
	}
	return out
}
