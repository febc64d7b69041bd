// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperr "agentfit/cli/internal/errors"

	"gopkg.in/yaml.v3"
)

// Sources loads suite payloads. File sources are confined to one root directory.
type Sources struct {
	root string
}

// NewSources returns a loader rooted at root.
func NewSources(root string) *Sources {
	return &Sources{root: root}
}

// Root returns the configured root directory.
func (s *Sources) Root() string { return s.root }

// Load returns the payload of src as plain JSON values (maps, slices, strings,
// float64, bool, nil).
func (s *Sources) Load(src Source) (any, error) {
	hasFile := strings.TrimSpace(src.FilePath) != ""
	if hasFile == (src.Inline != nil) {
		return nil, apperr.New(apperr.ValidationError, "suite source must set exactly one of filePath or inline")
	}
	if !hasFile {
		return normalize(src.Inline)
	}

	path, err := s.Resolve(src.FilePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceLoadFailed, fmt.Sprintf("read %s", src.FilePath), err)
	}

	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &v)
	default:
		err = json.Unmarshal(data, &v)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceLoadFailed, fmt.Sprintf("parse %s", src.FilePath), err)
	}
	return normalize(v)
}

// Resolve maps p to an absolute path inside the root. Paths that escape the
// root, lexically or through a symlink, are rejected before anything is read.
func (s *Sources) Resolve(p string) (string, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json", ".yaml", ".yml":
	default:
		return "", apperr.Newf(apperr.SourceRejected, "unsupported source file type %q", p)
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", apperr.Wrap(apperr.SourceLoadFailed, "resolve suites root", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	if !within(root, target) {
		return "", apperr.Newf(apperr.SourceRejected, "source %q resolves outside the suites root", p)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", apperr.Wrap(apperr.SourceLoadFailed, "resolve suites root", err)
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", apperr.Wrap(apperr.SourceLoadFailed, fmt.Sprintf("resolve %s", p), err)
	}
	if !within(realRoot, realTarget) {
		return "", apperr.Newf(apperr.SourceRejected, "source %q resolves outside the suites root", p)
	}
	return realTarget, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// normalize converts decoded YAML or Go literals into the shapes encoding/json
// produces, so every runner sees one representation.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Wrap(apperr.SourceLoadFailed, "suite payload is not JSON compatible", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.SourceLoadFailed, "suite payload is not JSON compatible", err)
	}
	return out, nil
}

// decode converts a normalized payload into a runner's pack type.
func decode(payload any, into any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.SourceLoadFailed, "encode suite payload", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return apperr.Wrap(apperr.SourceLoadFailed, "decode suite payload", err)
	}
	return nil
}
