// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package command

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func (q Query) MarshalJSON() ([]byte, error) {
	type alias Query
	a := alias(q)
	if a.Filters == nil {
		a.Filters = []Filter{}
	}
	if a.Sort == nil {
		a.Sort = []Sort{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindQuery, a})
}

func (m Mutate) MarshalJSON() ([]byte, error) {
	type alias Mutate
	a := alias(m)
	if a.Filters == nil {
		a.Filters = []Filter{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindMutate, a})
}

func (b Batch) MarshalJSON() ([]byte, error) {
	steps := b.Steps
	if steps == nil {
		steps = []Command{}
	}
	return json.Marshal(struct {
		Type  Kind      `json:"type"`
		Steps []Command `json:"steps"`
	}{KindBatch, steps})
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Steps []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Steps = make([]Command, 0, len(raw.Steps))
	for i, s := range raw.Steps {
		c, err := Unmarshal(s)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		b.Steps = append(b.Steps, c)
	}
	return nil
}

// Unmarshal decodes one command, dispatching on its "type" field.
// JSON numbers in filter and assignment values decode to int64 when integral
// and float64 otherwise.
func Unmarshal(data []byte) (Command, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case KindQuery:
		type alias Query
		var a alias
		if err := decodeNumbers(data, &a); err != nil {
			return nil, err
		}
		q := Query(a)
		normalizeFilters(q.Filters)
		return &q, nil
	case KindMutate:
		type alias Mutate
		var a alias
		if err := decodeNumbers(data, &a); err != nil {
			return nil, err
		}
		m := Mutate(a)
		normalizeFilters(m.Filters)
		for k, v := range m.Values {
			m.Values[k] = Normalize(v)
		}
		return &m, nil
	case KindBatch:
		var b Batch
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return &b, nil
	case "":
		return nil, fmt.Errorf("command has no type")
	}
	return nil, fmt.Errorf("unknown command type %q", head.Type)
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeFilters(fs []Filter) {
	for i := range fs {
		fs[i].Value = Normalize(fs[i].Value)
	}
}

// Normalize converts json.Number values, including those nested in slices and
// maps, to int64 or float64.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = Normalize(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = Normalize(t[k])
		}
		return t
	}
	return v
}
