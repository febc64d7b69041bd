// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperr "agentfit/cli/internal/errors"
)

// Entry is one discovered suite file.
type Entry struct {
	Kind Kind   `json:"kind"`
	File string `json:"file"`
	// Path is relative to the suites root and can be used as Source.FilePath.
	Path string `json:"path"`
}

var inventoryPatterns = []struct {
	marker string
	kind   Kind
}{
	{"lifecycle", KindLifecycle},
	{"api-journey", KindAPIJourney},
	{"agent-api-", KindScenario},
}

// Inventory lists the suite files directly under the root whose names mark
// their kind, sorted by file name.
func (s *Sources) Inventory() ([]Entry, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceLoadFailed, "read suites root", err)
	}
	var out []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if kind, ok := KindOf(d.Name()); ok {
			out = append(out, Entry{Kind: kind, File: d.Name(), Path: d.Name()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// KindOf infers a suite kind from a file name marker.
func KindOf(name string) (Kind, bool) {
	lower := strings.ToLower(name)
	switch filepath.Ext(lower) {
	case ".json", ".yaml", ".yml":
	default:
		return "", false
	}
	for _, p := range inventoryPatterns {
		if strings.Contains(lower, p.marker) {
			return p.kind, true
		}
	}
	return "", false
}

// Suites turns inventory entries into suite configs named after their files.
func Suites(entries []Entry) []SuiteConfig {
	out := make([]SuiteConfig, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.File, filepath.Ext(e.File))
		out = append(out, SuiteConfig{ID: slug(name), Name: name, Kind: e.Kind, Source: Source{FilePath: e.Path}})
	}
	return out
}
