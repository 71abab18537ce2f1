package content

import (
	"sort"
	"time"
)

// TemporalField names a timestamp inside a section document and the offset
// from "now" used when the stored value is empty or unreadable.
type TemporalField struct {
	Path           string
	FallbackOffset time.Duration
}

// Section describes one editable homepage section: its default template, the
// temporal fields that cross the wire in naive form, and its save policy.
type Section struct {
	Name string
	// Temporal lists timestamp paths. For list sections the paths are
	// relative to each item.
	Temporal []TemporalField

	template Document
	list     bool
	schema   string
}

// IsList reports whether the section is a variable-length list of items.
func (s *Section) IsList() bool {
	return s.list
}

// Defaults returns a fresh copy of the default document. For list sections
// it is the default item.
func (s *Section) Defaults() Document {
	return Merge(s.template, nil)
}

// Merge overlays incoming onto the section defaults.
func (s *Section) Merge(incoming any) (Document, []Mismatch) {
	return MergeWithReport(s.template, incoming)
}

// MergeItems merges a list payload item by item against the section item
// template.
func (s *Section) MergeItems(incoming any) ([]Document, []Mismatch) {
	return MergeList(s.template, incoming)
}

var (
	Hero = &Section{
		Name: "hero",
		Temporal: []TemporalField{
			{Path: "registrationDeadline", FallbackOffset: 30 * 24 * time.Hour},
		},
		template: Document{
			"headline":    "The National Student Innovation Challenge",
			"subheadline": "Build, pitch and compete with the brightest young minds in the country.",
			"description": "Teams of students from every participating school solve real problems set by our sponsors. Finalists present live to an industry jury.",
			"competition": map[string]any{
				"name":      "Innovation Challenge",
				"edition":   "2025",
				"venue":     "National Convention Centre",
				"prizePool": 500000,
			},
			"cta": map[string]any{
				"primary": map[string]any{
					"label": "Register Now",
					"href":  "/register",
				},
				"secondary": map[string]any{
					"label": "View Past Results",
					"href":  "/results",
				},
			},
			"seatsLeft":            120,
			"registrationDeadline": "2025-03-15 23:59:00",
			"isCountdownActive":    true,
		},
		schema: heroSchema,
	}

	Conversion = &Section{
		Name: "conversion",
		Temporal: []TemporalField{
			{Path: "urgencyStrip.deadline", FallbackOffset: 7 * 24 * time.Hour},
		},
		template: Document{
			"headline":    "Your shot at the grand prize starts here",
			"description": "Four prize tracks, one registration. Pick the challenge that fits your team.",
			"urgencyStrip": map[string]any{
				"enabled":           true,
				"text":              "Early-bird registration closes soon",
				"deadline":          "2025-03-15 23:59:00",
				"isCountdownActive": true,
				"closedMessage":     "Registration is currently closed. Check back for the next edition.",
			},
			"cards": []any{
				prizeCard("Grand Prize", 200000, "Awarded to the overall champion team.", "trophy"),
				prizeCard("Runner Up", 100000, "Awarded to the second placed team.", "medal"),
				prizeCard("Best Social Impact", 50000, "For the solution with the strongest community impact.", "heart"),
				prizeCard("Rising Star", 25000, "For the most promising first-time participants.", "star"),
			},
			"cta": map[string]any{
				"primary": map[string]any{
					"label": "Claim Your Seat",
					"href":  "/register",
				},
				"secondary": map[string]any{
					"label": "Talk to Us",
					"href":  "/contact",
				},
			},
		},
		schema: conversionSchema,
	}

	Statistics = &Section{
		Name: "statistics",
		template: Document{
			"studentsRegistered":   0,
			"schoolsParticipating": 0,
			"sponsorsOnboard":      0,
			"prizePool":            0,
		},
		schema: statisticsSchema,
	}

	Testimonials = &Section{
		Name: "testimonials",
		Temporal: []TemporalField{
			{Path: "createdAt"},
			{Path: "updatedAt"},
		},
		template: Document{
			"id":         "",
			"name":       "",
			"role":       "",
			"quote":      "",
			"imageUrl":   "",
			"isFeatured": false,
			"createdAt":  "",
			"updatedAt":  "",
		},
		list:   true,
		schema: testimonialSchema,
	}
)

func prizeCard(title string, amount int, description, icon string) map[string]any {
	return map[string]any{
		"title":       title,
		"amount":      amount,
		"currency":    "INR",
		"description": description,
		"icon":        icon,
	}
}

var registry = map[string]*Section{
	Hero.Name:         Hero,
	Conversion.Name:   Conversion,
	Statistics.Name:   Statistics,
	Testimonials.Name: Testimonials,
}

// Lookup returns the section registered under name.
func Lookup(name string) (*Section, bool) {
	s, ok := registry[name]
	return s, ok
}

// Sections returns every registered section ordered by name.
func Sections() []*Section {
	out := make([]*Section, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
