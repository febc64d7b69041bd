// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package template resolves {{expr}} tokens inside suite payloads.
//
// Supported expressions:
//
//	{{id:TAG}}            fresh identifier "TAG_<hex>"
//	{{nowIso}}            current instant, ISO-8601 UTC with milliseconds
//	{{nowPlusMinutes:N}}  current instant plus N minutes (N defaults to 0)
//	{{name}}              variable "name", or a path such as {{order.items[0].id}}
//
// A string that is exactly one token keeps the resolved value's type; any other
// string gets every token replaced inline, with non-string values JSON encoded.
// An unresolved token is an error, never an empty string.
//
// Generated values (ids and timestamps) are memoized per State, so the same
// token yields the same value everywhere it appears within one pass. Start a
// new State for every independent pass.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	reToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	reWhole = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)
)

// UnresolvedError reports a token that matched no generator and no variable.
type UnresolvedError struct {
	Expr string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved template token {{%s}}", e.Expr)
}

// State is the memo of one interpolation pass. It is not safe for concurrent use.
type State struct {
	cache map[string]any
	now   func() time.Time
	newID func() string
}

// Option configures a State.
type Option func(*State)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *State) { s.now = now } }

// WithIDSource overrides the random suffix generator used by {{id:TAG}}.
func WithIDSource(f func() string) Option { return func(s *State) { s.newID = f } }

// NewState starts a new interpolation pass.
func NewState(opts ...Option) *State {
	s := &State{
		cache: make(map[string]any),
		now:   time.Now,
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interpolate returns a copy of v with every token resolved. Maps and slices
// are walked recursively; non-string scalars pass through unchanged.
func (s *State) Interpolate(v any, vars map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return s.String(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := s.Interpolate(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := s.Interpolate(val, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			r, err := s.Text(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}

// String resolves the tokens of one string. A string that is a single token
// returns the resolved value as is.
func (s *State) String(str string, vars map[string]any) (any, error) {
	if m := reWhole.FindStringSubmatch(str); m != nil {
		return s.resolve(m[1], vars)
	}
	if !strings.Contains(str, "{{") {
		return str, nil
	}
	var firstErr error
	out := reToken.ReplaceAllStringFunc(str, func(tok string) string {
		if firstErr != nil {
			return tok
		}
		expr := reToken.FindStringSubmatch(tok)[1]
		v, err := s.resolve(expr, vars)
		if err != nil {
			firstErr = err
			return tok
		}
		return Stringify(v)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Text is String with the result always rendered as text.
func (s *State) Text(str string, vars map[string]any) (string, error) {
	v, err := s.String(str, vars)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

func (s *State) resolve(expr string, vars map[string]any) (any, error) {
	expr = strings.TrimSpace(expr)
	if v, ok := s.cache[expr]; ok {
		return v, nil
	}

	if v, ok := s.generate(expr); ok {
		s.cache[expr] = v
		return v, nil
	}

	if v, ok := vars[expr]; ok {
		return v, nil
	}
	if v, ok := Lookup(vars, expr); ok {
		return v, nil
	}
	return nil, &UnresolvedError{Expr: expr}
}

func (s *State) generate(expr string) (any, bool) {
	switch {
	case strings.HasPrefix(expr, "id:"):
		tag := strings.TrimSpace(strings.TrimPrefix(expr, "id:"))
		return tag + "_" + s.newID(), true
	case expr == "nowIso":
		return isoTime(s.now()), true
	case strings.HasPrefix(expr, "nowPlusMinutes:"):
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(expr, "nowPlusMinutes:")), 64)
		if err != nil {
			n = 0
		}
		return isoTime(s.now().Add(time.Duration(n * float64(time.Minute)))), true
	}
	return nil, false
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Stringify renders a resolved value for inline substitution.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
