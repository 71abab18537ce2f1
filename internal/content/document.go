package content

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document is one homepage section as a JSON-shaped record.
type Document map[string]any

// Repeated marks a variable-length list inside a default document. Every
// incoming element is merged against Item; the default value is an empty list.
type Repeated struct {
	Item Document
}

// Clone returns a deep copy of d.
func Clone(d Document) Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case Document:
		return cloneMap(typed)
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneMap(item)
		}
		return out
	case Repeated:
		return []any{}
	default:
		return v
	}
}

// Lookup resolves a dotted path such as "cta.primary.label" or "cards.2.title".
func (d Document) Lookup(path string) (any, bool) {
	var current any = map[string]any(d)
	for _, part := range splitPath(path) {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case Document:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// String returns the string at path, or "" when absent or not a string.
func (d Document) String(path string) string {
	v, ok := d.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns the bool at path, or false.
func (d Document) Bool(path string) bool {
	v, ok := d.Lookup(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Int returns the integer at path, or 0.
func (d Document) Int(path string) int {
	v, ok := d.Lookup(path)
	if !ok {
		return 0
	}
	n, ok := coerceInt(v)
	if !ok {
		return 0
	}
	return n
}

// Set replaces the value at an existing path. It never creates keys, so a
// document keeps its shape.
func (d Document) Set(path string, value any) bool {
	parts := splitPath(path)
	if len(parts) == 0 {
		return false
	}
	parentPath := strings.Join(parts[:len(parts)-1], ".")
	last := parts[len(parts)-1]
	var parent any = map[string]any(d)
	if parentPath != "" {
		var ok bool
		parent, ok = d.Lookup(parentPath)
		if !ok {
			return false
		}
	}
	switch node := parent.(type) {
	case map[string]any:
		if _, ok := node[last]; !ok {
			return false
		}
		node[last] = value
		return true
	case Document:
		if _, ok := node[last]; !ok {
			return false
		}
		node[last] = value
		return true
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(node) {
			return false
		}
		node[idx] = value
		return true
	}
	return false
}

// MarshalIndent renders d the way the mirror and CLI print documents.
func (d Document) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]any(d), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
