package content

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeReturnsDefaultsForMalformedInput(t *testing.T) {
	inputs := map[string]any{
		"nil":              nil,
		"empty object":     map[string]any{},
		"empty string":     "",
		"broken json":      `{"headline":`,
		"json array":       `[1,2,3]`,
		"number":           42.0,
		"double string":    `"{\"headline\":\"Hi\"}"`,
		"raw null":         json.RawMessage(`null`),
		"unsupported type": make(chan int),
	}
	want := Conversion.Defaults()
	for name, in := range inputs {
		got := Merge(Conversion.template, in)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s: expected defaults (-want +got):\n%s", name, diff)
		}
	}
}

func TestMergeParsesDoubleEncodedString(t *testing.T) {
	got, mismatches := Conversion.Merge(`{"headline":"Hi"}`)
	if got.String("headline") != "Hi" {
		t.Fatalf("expected headline Hi, got %q", got.String("headline"))
	}
	defaults := Conversion.Defaults()
	defaults["headline"] = "Hi"
	if diff := cmp.Diff(defaults, got); diff != "" {
		t.Fatalf("unexpected merge result (-want +got):\n%s", diff)
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected no mismatches, got %v", mismatches)
	}
}

func TestMergeKeepsShapeAndDropsUnknownKeys(t *testing.T) {
	incoming := map[string]any{
		"headline": "Win big",
		"extra":    "ignored",
		"cta": map[string]any{
			"primary": map[string]any{"label": "Go", "tracking": "x"},
		},
	}
	got, mismatches := Conversion.Merge(incoming)
	if _, ok := got["extra"]; ok {
		t.Fatalf("expected unknown key to be dropped")
	}
	if got.String("cta.primary.label") != "Go" {
		t.Fatalf("expected nested label Go, got %q", got.String("cta.primary.label"))
	}
	if got.String("cta.primary.href") != "/register" {
		t.Fatalf("expected nested href default, got %q", got.String("cta.primary.href"))
	}
	assertSameShape(t, "", map[string]any(Conversion.Defaults()), map[string]any(got))

	var paths []string
	for _, m := range mismatches {
		paths = append(paths, m.Path)
	}
	if strings.Join(paths, ",") != "cta.primary.tracking,extra" {
		t.Fatalf("expected unknown keys reported, got %v", paths)
	}
}

func TestMergeCoercesLeafTypes(t *testing.T) {
	incoming := map[string]any{
		"headline":          12.5,
		"seatsLeft":         "45",
		"isCountdownActive": "false",
		"competition": map[string]any{
			"prizePool": json.Number("750000"),
			"edition":   2026.0,
		},
		"subheadline": true,
	}
	got, mismatches := Hero.Merge(incoming)
	if got["headline"] != "12.5" {
		t.Fatalf("expected number coerced to string, got %#v", got["headline"])
	}
	if got["seatsLeft"] != 45 {
		t.Fatalf("expected numeric string coerced to int, got %#v", got["seatsLeft"])
	}
	if got["isCountdownActive"] != false {
		t.Fatalf("expected bool string coerced, got %#v", got["isCountdownActive"])
	}
	if v, _ := got.Lookup("competition.prizePool"); v != 750000 {
		t.Fatalf("expected json number coerced to int, got %#v", v)
	}
	if got.String("competition.edition") != "2026" {
		t.Fatalf("expected edition 2026, got %q", got.String("competition.edition"))
	}
	if got["subheadline"] != Hero.Defaults()["subheadline"] {
		t.Fatalf("expected bool in string field to fall back to default, got %#v", got["subheadline"])
	}
	if len(mismatches) != 1 || mismatches[0].Path != "subheadline" {
		t.Fatalf("expected one mismatch on subheadline, got %v", mismatches)
	}
}

func TestMergeRejectsUncoercibleNumbers(t *testing.T) {
	got := Merge(Hero.template, map[string]any{"seatsLeft": "forty"})
	if got["seatsLeft"] != 120 {
		t.Fatalf("expected default seats, got %#v", got["seatsLeft"])
	}
	got = Merge(Hero.template, map[string]any{"seatsLeft": 10.5})
	if got["seatsLeft"] != 120 {
		t.Fatalf("expected non-integral seats to fall back, got %#v", got["seatsLeft"])
	}
	got = Merge(Hero.template, map[string]any{"seatsLeft": "NaN"})
	if got["seatsLeft"] != 120 {
		t.Fatalf("expected NaN seats to fall back, got %#v", got["seatsLeft"])
	}
}

func TestMergeCardsAlwaysHaveFourEntries(t *testing.T) {
	for _, n := range []int{0, 2, 4, 6} {
		cards := make([]any, n)
		for i := range cards {
			cards[i] = map[string]any{"title": "Card", "amount": float64(i + 1)}
		}
		got, mismatches := Conversion.Merge(map[string]any{"cards": cards})
		merged, ok := got["cards"].([]any)
		if !ok || len(merged) != 4 {
			t.Fatalf("cards=%d: expected 4 merged cards, got %#v", n, got["cards"])
		}
		for i := 0; i < 4; i++ {
			card := merged[i].(map[string]any)
			if i < n {
				if card["title"] != "Card" || card["amount"] != i+1 {
					t.Fatalf("cards=%d: expected incoming card %d, got %#v", n, i, card)
				}
				if card["icon"] == "" {
					t.Fatalf("cards=%d: expected icon filled from defaults", n)
				}
				continue
			}
			def := Conversion.Defaults()["cards"].([]any)[i]
			if diff := cmp.Diff(def, card); diff != "" {
				t.Fatalf("cards=%d: expected default card %d (-want +got):\n%s", n, i, diff)
			}
		}
		if n != 4 && len(mismatches) == 0 {
			t.Fatalf("cards=%d: expected length mismatch to be reported", n)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	inputs := []any{
		nil,
		map[string]any{"headline": "Hi", "cards": []any{map[string]any{"amount": "5"}}},
		`{"urgencyStrip":{"enabled":"true","deadline":"2025-01-01T10:00"}}`,
		map[string]any{"cards": "not an array", "cta": "nope"},
	}
	for _, in := range inputs {
		once := Merge(Conversion.template, in)
		twice := Merge(Conversion.template, once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("merge not idempotent for %#v (-once +twice):\n%s", in, diff)
		}
	}
}

func TestMergeNeverMutatesDefaults(t *testing.T) {
	before := Conversion.Defaults()
	got := Conversion.Defaults()
	got.Set("cta.primary.label", "changed")
	got["cards"].([]any)[0].(map[string]any)["title"] = "changed"
	merged := Merge(Conversion.template, nil)
	merged["headline"] = "changed"
	if diff := cmp.Diff(before, Conversion.Defaults()); diff != "" {
		t.Fatalf("defaults were mutated (-before +after):\n%s", diff)
	}
}

func TestMergeListKeepsObjectsOnly(t *testing.T) {
	incoming := `[{"id":"1","name":"Asha","quote":"Great","isFeatured":"true"}, 7, "garbage", {"id":"2","name":"Ravi"}]`
	items, mismatches := Testimonials.MergeItems(incoming)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["isFeatured"] != true || items[0]["role"] != "" {
		t.Fatalf("expected first item coerced and filled, got %#v", items[0])
	}
	if items[1]["quote"] != "" {
		t.Fatalf("expected missing quote to default, got %#v", items[1]["quote"])
	}
	if len(mismatches) != 2 {
		t.Fatalf("expected 2 dropped elements reported, got %v", mismatches)
	}
}

func TestMergeRepeatedFieldDefaultsToEmptyList(t *testing.T) {
	defaults := Document{"items": Repeated{Item: Document{"name": ""}}}
	got := Merge(defaults, nil)
	items, ok := got["items"].([]any)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty list, got %#v", got["items"])
	}
	got = Merge(defaults, map[string]any{"items": []any{map[string]any{"name": "a"}}})
	if len(got["items"].([]any)) != 1 {
		t.Fatalf("expected one item, got %#v", got["items"])
	}
}

func TestDocumentSetNeverAddsKeys(t *testing.T) {
	doc := Hero.Defaults()
	if doc.Set("unknown.path", "x") {
		t.Fatalf("expected unknown path to be rejected")
	}
	if !doc.Set("cta.secondary.href", "/faq") || doc.String("cta.secondary.href") != "/faq" {
		t.Fatalf("expected nested set to succeed")
	}
	conv := Conversion.Defaults()
	if !conv.Set("cards.3.title", "Wildcard") || conv.String("cards.3.title") != "Wildcard" {
		t.Fatalf("expected indexed set to succeed")
	}
	if conv.Set("cards.4.title", "x") {
		t.Fatalf("expected out-of-range index to be rejected")
	}
}

func TestValidateReportsMissingRequiredFields(t *testing.T) {
	doc := Conversion.Defaults()
	doc.Set("cta.primary.label", "")
	err := Conversion.Validate(doc)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0] != "/cta/primary/label" {
		t.Fatalf("expected /cta/primary/label to fail, got %v", verr.Fields)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	for _, s := range []*Section{Hero, Conversion, Statistics} {
		if err := s.Validate(s.Defaults()); err != nil {
			t.Fatalf("%s defaults should validate: %v", s.Name, err)
		}
	}
	item := Testimonials.Defaults()
	item["name"] = "Asha"
	item["quote"] = "Loved it"
	if err := Testimonials.Validate(item); err != nil {
		t.Fatalf("testimonial should validate: %v", err)
	}
}

func TestValidateRejectsWhitespaceAndNegativeCounters(t *testing.T) {
	hero := Hero.Defaults()
	hero["headline"] = "   "
	if err := Hero.Validate(hero); err == nil {
		t.Fatalf("expected whitespace headline to fail")
	}
	stats := Statistics.Defaults()
	stats["prizePool"] = -1
	if err := Statistics.Validate(stats); err == nil {
		t.Fatalf("expected negative counter to fail")
	}
}

func TestSectionsRegistry(t *testing.T) {
	var names []string
	for _, s := range Sections() {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "conversion,hero,statistics,testimonials" {
		t.Fatalf("unexpected sections %v", names)
	}
	if s, ok := Lookup("hero"); !ok || s != Hero {
		t.Fatalf("expected hero lookup")
	}
	if _, ok := Lookup("sponsors"); ok {
		t.Fatalf("expected unknown section lookup to fail")
	}
	if !Testimonials.IsList() || Hero.IsList() {
		t.Fatalf("unexpected list flags")
	}
}

func assertSameShape(t *testing.T, path string, want, got any) {
	t.Helper()
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			if d, isDoc := got.(Document); isDoc {
				g, ok = map[string]any(d), true
			}
		}
		if !ok || len(g) != len(w) {
			t.Fatalf("%s: expected object with %d keys, got %#v", path, len(w), got)
		}
		for k, v := range w {
			assertSameShape(t, joinPath(path, k), v, g[k])
		}
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			t.Fatalf("%s: expected array of %d, got %#v", path, len(w), got)
		}
		for i := range w {
			assertSameShape(t, path, w[i], g[i])
		}
	default:
		if kindOf(want) != kindOf(got) {
			t.Fatalf("%s: expected %s leaf, got %s", path, kindOf(want), kindOf(got))
		}
	}
}

func TestValidateAcceptsCoercibleCounterStrings(t *testing.T) {
	stats := Document{
		"studentsRegistered":   "120",
		"schoolsParticipating": "3",
		"sponsorsOnboard":      "0",
		"prizePool":            5000,
	}
	if err := Statistics.Validate(stats); err != nil {
		t.Fatalf("expected numeric strings to validate, got %v", err)
	}

	for _, bad := range []string{"-5", "many"} {
		stats["prizePool"] = bad
		err := Statistics.Validate(stats)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("prizePool %q: expected validation error, got %v", bad, err)
		}
		if len(verr.Fields) != 1 || verr.Fields[0] != "/prizePool" {
			t.Fatalf("prizePool %q: expected /prizePool to fail, got %v", bad, verr.Fields)
		}
	}

	delete(stats, "prizePool")
	if err := Statistics.Validate(stats); err == nil {
		t.Fatalf("expected a missing counter to fail")
	}
}

func TestValidateRejectsUnreadableDeadline(t *testing.T) {
	hero := Hero.Defaults()
	hero["registrationDeadline"] = "next friday"
	err := Hero.Validate(hero)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0] != "/registrationDeadline" {
		t.Fatalf("expected /registrationDeadline to fail, got %v", verr.Fields)
	}

	for _, ok := range []string{"", "2025-04-01 18:00:00", "2025-04-01T18:00:00Z"} {
		hero["registrationDeadline"] = ok
		if err := Hero.Validate(hero); err != nil {
			t.Fatalf("deadline %q should validate: %v", ok, err)
		}
	}
}
