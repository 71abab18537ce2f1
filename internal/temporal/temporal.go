// Package temporal converts timestamps between the three textual forms used by
// homepage content: the naive "2006-01-02 15:04:05" form persisted by the
// content store, ISO-8601 shown to readers, and the "2006-01-02T15:04" form
// accepted by datetime-local inputs.
//
// Strings without zone information are read as wall-clock time in the
// normalizer's location. Nothing shifts the hour unless the input carries an
// explicit offset.
package temporal

import (
	"strings"
	"time"
)

const (
	NaiveLayout      = "2006-01-02 15:04:05"
	LocalInputLayout = "2006-01-02T15:04"
	ISOLayout        = time.RFC3339
)

// Form identifies which textual encoding a value was read from.
type Form int

const (
	FormUnknown Form = iota
	FormNaive
	FormISO
	FormLocalInput
)

func (f Form) String() string {
	switch f {
	case FormNaive:
		return "naive"
	case FormISO:
		return "iso"
	case FormLocalInput:
		return "local-input"
	default:
		return "unknown"
	}
}

type layout struct {
	value string
	form  Form
	zoned bool
}

// Ordered from most to least specific; the first match wins.
var layouts = []layout{
	{value: time.RFC3339Nano, form: FormISO, zoned: true},
	{value: "2006-01-02T15:04Z07:00", form: FormISO, zoned: true},
	{value: "2006-01-02 15:04:05Z07:00", form: FormISO, zoned: true},
	{value: "2006-01-02T15:04:05.999999999", form: FormISO},
	{value: "2006-01-02T15:04:05", form: FormISO},
	{value: LocalInputLayout, form: FormLocalInput},
	{value: "2006-01-02 15:04:05.999999999", form: FormNaive},
	{value: NaiveLayout, form: FormNaive},
	{value: "2006-01-02 15:04", form: FormNaive},
	{value: "2006-01-02", form: FormNaive},
}

// Normalizer anchors zone-less values in Location. The zero value uses UTC.
type Normalizer struct {
	Location *time.Location
}

var utc = Normalizer{Location: time.UTC}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Parse reads any supported form. ok is false for empty or unparsable input.
func (n Normalizer) Parse(value string) (t time.Time, form Form, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, FormUnknown, false
	}
	loc := n.location()
	for _, l := range layouts {
		if l.zoned {
			parsed, err := time.Parse(l.value, value)
			if err == nil {
				return parsed.In(loc), l.form, true
			}
			continue
		}
		parsed, err := time.ParseInLocation(l.value, value, loc)
		if err == nil {
			return parsed, l.form, true
		}
	}
	return time.Time{}, FormUnknown, false
}

// Time returns the parsed instant, or fallback when value cannot be read.
func (n Normalizer) Time(value string, fallback time.Time) time.Time {
	if t, _, ok := n.Parse(value); ok {
		return t
	}
	return fallback.In(n.location())
}

// ToNaive renders value as "2006-01-02 15:04:05". Seconds are zero-filled for
// inputs that lack them.
func (n Normalizer) ToNaive(value string, fallback time.Time) string {
	return n.Time(value, fallback).Format(NaiveLayout)
}

// ToISO renders value as RFC 3339 with second precision in the anchor location.
func (n Normalizer) ToISO(value string, fallback time.Time) string {
	return n.Time(value, fallback).Truncate(time.Second).Format(ISOLayout)
}

// ToLocalInput renders value truncated to the minute as "2006-01-02T15:04".
func (n Normalizer) ToLocalInput(value string, fallback time.Time) string {
	return n.Time(value, fallback).Format(LocalInputLayout)
}

// Valid reports whether value parses in any supported form.
func (n Normalizer) Valid(value string) bool {
	_, _, ok := n.Parse(value)
	return ok
}

func Parse(value string) (time.Time, Form, bool) {
	return utc.Parse(value)
}

func ToNaive(value string, fallback time.Time) string {
	return utc.ToNaive(value, fallback)
}

func ToISO(value string, fallback time.Time) string {
	return utc.ToISO(value, fallback)
}

// Valid reports whether value parses in any supported form.
func Valid(value string) bool {
	return utc.Valid(value)
}

func ToLocalInput(value string, fallback time.Time) string {
	return utc.ToLocalInput(value, fallback)
}
