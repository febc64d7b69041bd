// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog format. It lets the translator run offline and
// adds aliases on top of a live schema.
type File struct {
	Tables []TableInfo `json:"tables" yaml:"tables"`
}

// LoadFile reads a JSON or YAML catalog, chosen by extension.
func LoadFile(path string) (*Snapshot, error) {
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(f.Tables), nil
}

func readFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return f, fmt.Errorf("parse catalog %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// WithOverlay returns a snapshot with the aliases and column aliases of the
// overlay file applied to s. Overlay tables that s does not know are ignored.
func WithOverlay(s *Snapshot, path string) (*Snapshot, error) {
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	extra := make(map[string]TableInfo, len(f.Tables))
	for _, t := range f.Tables {
		extra[t.Name] = t
	}
	tables := make([]TableInfo, 0, len(s.names))
	for _, name := range s.names {
		t := s.tables[name]
		if o, ok := extra[name]; ok {
			t.Aliases = append(append([]string(nil), t.Aliases...), o.Aliases...)
			merged := make(map[string]string, len(t.ColumnAliases)+len(o.ColumnAliases))
			for k, v := range t.ColumnAliases {
				merged[k] = v
			}
			for k, v := range o.ColumnAliases {
				merged[k] = v
			}
			t.ColumnAliases = merged
		}
		tables = append(tables, t)
	}
	return NewSnapshot(tables), nil
}
