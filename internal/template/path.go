// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package template

import (
	"reflect"
	"strconv"
	"strings"
)

// Lookup walks root along a dotted/bracketed path such as "data.items[2].id".
// Maps with string keys and slices of any element type are traversed. The
// boolean is false when any segment is missing; a present null yields (nil, true).
func Lookup(root any, path string) (any, bool) {
	segs, ok := splitPath(path)
	if !ok {
		return nil, false
	}
	cur := root
	for _, seg := range segs {
		next, found := step(cur, seg)
		if !found {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

type segment struct {
	key   string
	index int
	isIdx bool
}

func splitPath(path string) ([]segment, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segs = append(segs, segment{key: part})
				break
			}
			if open > 0 {
				segs = append(segs, segment{key: part[:open]})
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				return nil, false
			}
			inner := part[open+1 : open+end]
			n, err := strconv.Atoi(inner)
			if err != nil {
				segs = append(segs, segment{key: strings.Trim(inner, `"'`)})
			} else {
				segs = append(segs, segment{index: n, isIdx: true})
			}
			part = part[open+end+1:]
		}
	}
	return segs, len(segs) > 0
}

func step(cur any, seg segment) (any, bool) {
	switch t := cur.(type) {
	case map[string]any:
		if seg.isIdx {
			v, ok := t[strconv.Itoa(seg.index)]
			return v, ok
		}
		v, ok := t[seg.key]
		return v, ok
	case []any:
		if !seg.isIdx || seg.index < 0 || seg.index >= len(t) {
			return nil, false
		}
		return t[seg.index], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		key := seg.key
		if seg.isIdx {
			key = strconv.Itoa(seg.index)
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if !seg.isIdx || seg.index < 0 || seg.index >= rv.Len() {
			return nil, false
		}
		return rv.Index(seg.index).Interface(), true
	}
	return nil, false
}
