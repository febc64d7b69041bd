// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package template

import (
	"errors"
	"fmt"
	"sort"
)

// VariableError reports the variable whose value could not be resolved.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string { return fmt.Sprintf("variable %q: %v", e.Name, e.Err) }

func (e *VariableError) Unwrap() error { return e.Err }

// Resolve interpolates vars against base and against each other. Variables
// may reference one another in any order; passes repeat until nothing new
// resolves. The result holds base plus every resolved variable. When some
// variables stay unresolved, the first by name is reported.
func (s *State) Resolve(vars, base map[string]any) (map[string]any, error) {
	bag := make(map[string]any, len(base)+len(vars))
	for k, v := range base {
		bag[k] = v
	}
	pending := make([]string, 0, len(vars))
	for k := range vars {
		pending = append(pending, k)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		var (
			next  []string
			first *VariableError
		)
		for _, k := range pending {
			v, err := s.Interpolate(vars[k], bag)
			if err != nil {
				var ue *UnresolvedError
				if !errors.As(err, &ue) {
					return bag, &VariableError{Name: k, Err: err}
				}
				if first == nil {
					first = &VariableError{Name: k, Err: err}
				}
				next = append(next, k)
				continue
			}
			bag[k] = v
		}
		if len(next) == len(pending) {
			return bag, first
		}
		pending = next
	}
	return bag, nil
}
