package content

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Mismatch records one place where incoming content did not fit the default
// shape and was recovered from defaults or coerced.
type Mismatch struct {
	Path   string
	Reason string
}

func (m Mismatch) String() string {
	if m.Path == "" {
		return m.Reason
	}
	return m.Path + ": " + m.Reason
}

// Merge overlays incoming onto defaults. The result always has exactly the
// shape of defaults; malformed input degrades to default values.
func Merge(defaults Document, incoming any) Document {
	doc, _ := MergeWithReport(defaults, incoming)
	return doc
}

// MergeWithReport is Merge plus the list of recovered mismatches.
func MergeWithReport(defaults Document, incoming any) (Document, []Mismatch) {
	m := &merger{}
	out := m.object("", map[string]any(defaults), incoming)
	return Document(out), m.mismatches
}

// MergeList merges every element of incoming against item. Elements that are
// not objects are dropped.
func MergeList(item Document, incoming any) ([]Document, []Mismatch) {
	m := &merger{}
	merged := m.repeated("", item, incoming)
	out := make([]Document, 0, len(merged))
	for _, v := range merged {
		out = append(out, Document(v.(map[string]any)))
	}
	return out, m.mismatches
}

type merger struct {
	mismatches []Mismatch
}

func (m *merger) report(path, format string, args ...any) {
	m.mismatches = append(m.mismatches, Mismatch{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (m *merger) value(path string, def, in any) any {
	if in == nil {
		return cloneValue(def)
	}
	switch d := def.(type) {
	case Document:
		return m.object(path, d, in)
	case map[string]any:
		return m.object(path, d, in)
	case []any:
		return m.fixed(path, d, in)
	case Repeated:
		return m.repeated(path, d.Item, in)
	case string:
		if s, ok := coerceString(in); ok {
			return s
		}
	case bool:
		if b, ok := coerceBool(in); ok {
			return b
		}
	case int:
		if n, ok := coerceInt(in); ok {
			return n
		}
	case float64:
		if f, ok := coerceFloat(in); ok {
			return f
		}
	default:
		return cloneValue(def)
	}
	m.report(path, "expected %s, got %s", kindOf(def), kindOf(in))
	return cloneValue(def)
}

func (m *merger) object(path string, def map[string]any, in any) map[string]any {
	out := make(map[string]any, len(def))
	src, ok := m.asObject(path, in)
	if !ok {
		for k, v := range def {
			out[k] = cloneValue(v)
		}
		return out
	}
	for k, v := range def {
		out[k] = m.value(joinPath(path, k), v, src[k])
	}
	extras := make([]string, 0)
	for k := range src {
		if _, known := def[k]; !known {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		m.report(joinPath(path, k), "unknown key dropped")
	}
	return out
}

func (m *merger) fixed(path string, def []any, in any) []any {
	out := make([]any, len(def))
	src, ok := m.asArray(path, in)
	if !ok {
		for i, v := range def {
			out[i] = cloneValue(v)
		}
		return out
	}
	if len(src) != len(def) {
		m.report(path, "expected %d elements, got %d", len(def), len(src))
	}
	for i, v := range def {
		if i < len(src) {
			out[i] = m.value(joinPath(path, strconv.Itoa(i)), v, src[i])
			continue
		}
		out[i] = cloneValue(v)
	}
	return out
}

func (m *merger) repeated(path string, item Document, in any) []any {
	out := make([]any, 0)
	src, ok := m.asArray(path, in)
	if !ok {
		return out
	}
	for i, element := range src {
		elementPath := joinPath(path, strconv.Itoa(i))
		if _, isObject := m.asObject(elementPath, element); !isObject {
			continue
		}
		out = append(out, m.object(elementPath, map[string]any(item), element))
	}
	return out
}

// asObject accepts maps, JSON text (parsed once) and arbitrary Go values
// that marshal to a JSON object.
func (m *merger) asObject(path string, in any) (map[string]any, bool) {
	switch typed := in.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return typed, true
	case Document:
		return typed, true
	}
	decoded, ok := m.decode(path, in)
	if !ok {
		return nil, false
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		m.report(path, "expected object, got %s", kindOf(decoded))
		return nil, false
	}
	return obj, true
}

func (m *merger) asArray(path string, in any) ([]any, bool) {
	switch typed := in.(type) {
	case nil:
		return nil, false
	case []any:
		return typed, true
	}
	decoded, ok := m.decode(path, in)
	if !ok {
		return nil, false
	}
	arr, ok := decoded.([]any)
	if !ok {
		m.report(path, "expected array, got %s", kindOf(decoded))
		return nil, false
	}
	return arr, true
}

func (m *merger) decode(path string, in any) (any, bool) {
	var raw []byte
	switch typed := in.(type) {
	case string:
		raw = []byte(strings.TrimSpace(typed))
	case []byte:
		raw = typed
	case json.RawMessage:
		raw = typed
	default:
		encoded, err := json.Marshal(in)
		if err != nil {
			m.report(path, "unencodable value %T", in)
			return nil, false
		}
		raw = encoded
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		m.report(path, "unparsable JSON: %v", err)
		return nil, false
	}
	if out == nil {
		return nil, false
	}
	return out, true
}

func coerceString(in any) (string, bool) {
	switch v := in.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

func coerceBool(in any) (bool, bool) {
	switch v := in.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

func coerceFloat(in any) (float64, bool) {
	var f float64
	switch v := in.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceInt(in any) (int, bool) {
	switch v := in.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	}
	f, ok := coerceFloat(in)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int(f), true
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int32, int64:
		return "integer"
	case float32, float64, json.Number:
		return "number"
	case map[string]any, Document:
		return "object"
	case []any:
		return "array"
	case Repeated:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
