package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/agentworkforce/homepage/internal/temporal"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError lists the fields that block a save.
type ValidationError struct {
	Section string
	Fields  []string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: invalid document", e.Section)
	}
	return fmt.Sprintf("%s: invalid fields %s", e.Section, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var compiled = struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}{schemas: map[string]*jsonschema.Schema{}}

func (s *Section) compiledSchema() (*jsonschema.Schema, error) {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	if sch, ok := compiled.schemas[s.Name]; ok {
		return sch, nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(s.schema))
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", s.Name, err)
	}
	url := s.Name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%s schema: %w", s.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", s.Name, err)
	}
	compiled.schemas[s.Name] = sch
	return sch, nil
}

// Validate checks the fields a section requires before it may be saved.
// For list sections doc is a single item. Values are checked after the same
// coercion Merge applies, so "120" satisfies an integer field; keys missing
// from doc still count as missing. Non-empty timestamps must parse.
func (s *Section) Validate(doc Document) error {
	sch, err := s.compiledSchema()
	if err != nil {
		return err
	}
	merged, mismatches := s.Merge(doc)
	failed := make(map[string]struct{}, len(mismatches))
	for _, m := range mismatches {
		failed[m.Path] = struct{}{}
	}
	view, _ := coerced("", map[string]any(doc), map[string]any(merged), failed).(map[string]any)

	var fields []string
	for _, tf := range s.Temporal {
		if v, ok := Document(view).Lookup(tf.Path); ok {
			if str, isString := v.(string); isString && strings.TrimSpace(str) != "" && !temporal.Valid(str) {
				fields = append(fields, "/"+strings.Join(splitPath(tf.Path), "/"))
			}
		}
	}

	raw, err := json.Marshal(view)
	if err != nil {
		return &ValidationError{Section: s.Name, Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Section: s.Name, Err: err}
	}
	err = sch.Validate(inst)
	var verr *jsonschema.ValidationError
	switch {
	case err == nil && len(fields) == 0:
		return nil
	case err == nil:
		return &ValidationError{Section: s.Name, Fields: fields, Err: errors.New("unreadable timestamp")}
	case !errors.As(err, &verr):
		return &ValidationError{Section: s.Name, Err: err}
	}
	return &ValidationError{Section: s.Name, Fields: mergeFields(failingFields(verr), fields), Err: err}
}

// coerced mirrors the key structure of raw, taking each present value from
// merged. Values the merge could not coerce keep their raw form so the schema
// reports them.
func coerced(path string, raw any, merged any, failed map[string]struct{}) any {
	switch r := raw.(type) {
	case map[string]any:
		m, ok := merged.(map[string]any)
		if !ok {
			return raw
		}
		out := make(map[string]any, len(r))
		for k, v := range r {
			mv, known := m[k]
			if !known {
				continue
			}
			out[k] = coerced(joinPath(path, k), v, mv, failed)
		}
		return out
	case Document:
		return coerced(path, map[string]any(r), merged, failed)
	case []any:
		m, ok := merged.([]any)
		if !ok {
			return raw
		}
		out := make([]any, 0, len(r))
		for i, v := range r {
			if i >= len(m) {
				out = append(out, v)
				continue
			}
			out = append(out, coerced(joinPath(path, strconv.Itoa(i)), v, m[i], failed))
		}
		return out
	default:
		if _, bad := failed[path]; bad {
			return raw
		}
		return merged
	}
}

func mergeFields(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range append(a, b...) {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func failingFields(verr *jsonschema.ValidationError) []string {
	seen := map[string]struct{}{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			seen["/"+strings.Join(e.InstanceLocation, "/")] = struct{}{}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	out := make([]string, 0, len(seen))
	for field := range seen {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

const link = `{
	"type": "object",
	"required": ["label", "href"],
	"properties": {
		"label": {"type": "string", "pattern": "\\S"},
		"href": {"type": "string", "pattern": "\\S"}
	}
}`

var heroSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["headline", "cta", "seatsLeft", "registrationDeadline"],
	"properties": {
		"headline": {"type": "string", "pattern": "\\S"},
		"seatsLeft": {"type": "integer", "minimum": 0},
		"registrationDeadline": {"type": "string", "pattern": "\\S"},
		"cta": {
			"type": "object",
			"required": ["primary"],
			"properties": {"primary": ` + link + `}
		}
	}
}`

var conversionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["headline", "cards", "cta", "urgencyStrip"],
	"properties": {
		"headline": {"type": "string", "pattern": "\\S"},
		"urgencyStrip": {
			"type": "object",
			"required": ["deadline"],
			"properties": {"deadline": {"type": "string", "pattern": "\\S"}}
		},
		"cards": {
			"type": "array",
			"minItems": 4,
			"maxItems": 4,
			"items": {
				"type": "object",
				"required": ["title", "amount"],
				"properties": {
					"title": {"type": "string", "pattern": "\\S"},
					"amount": {"type": "integer", "minimum": 0}
				}
			}
		},
		"cta": {
			"type": "object",
			"required": ["primary"],
			"properties": {"primary": ` + link + `}
		}
	}
}`

const counter = `{"type": "integer", "minimum": 0}`

var statisticsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["studentsRegistered", "schoolsParticipating", "sponsorsOnboard", "prizePool"],
	"properties": {
		"studentsRegistered": ` + counter + `,
		"schoolsParticipating": ` + counter + `,
		"sponsorsOnboard": ` + counter + `,
		"prizePool": ` + counter + `
	}
}`

var testimonialSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "quote"],
	"properties": {
		"name": {"type": "string", "pattern": "\\S"},
		"quote": {"type": "string", "pattern": "\\S"}
	}
}`
