// Package persona models tagged archetypes, the weighted assignments that link
// subjects to them, and the compatibility scores computed over those
// assignments.
package persona

import (
	"sort"
	"strings"
	"time"
)

// Category groups personas. The scoring semantics of each category are fixed
// by name and cannot be configured.
type Category string

const (
	// CategoryStudent is diversity-seeking when scoring teams.
	CategoryStudent Category = "student"
	// CategorySocial contributes weighted mutual overlap to match scores.
	CategorySocial Category = "social"
	// CategoryAchievement is similarity-seeking for teams and overlap-seeking for matches.
	CategoryAchievement Category = "achievement"
	// CategoryFantasy rewards difference between two subjects.
	CategoryFantasy Category = "fantasy"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryStudent, CategorySocial, CategoryAchievement, CategoryFantasy}
}

// ParseCategory normalises raw input into a known category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	return c, c.Valid()
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStudent, CategorySocial, CategoryAchievement, CategoryFantasy:
		return true
	}
	return false
}

// Well-known attribute names.
const (
	FieldAbout      = "about"
	FieldGoals      = "goals"
	FieldMotivation = "motivation"

	FieldSays   = "says"
	FieldThinks = "thinks"
	FieldFeels  = "feels"
	FieldDoes   = "does"
)

// Attributes is a free-form map of descriptive persona fields.
type Attributes map[string]string

// Get returns the named field or the empty string.
func (a Attributes) Get(field string) string {
	if a == nil {
		return ""
	}
	return a[field]
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Attributes) About() string      { return a.Get(FieldAbout) }
func (a Attributes) Goals() string      { return a.Get(FieldGoals) }
func (a Attributes) Motivation() string { return a.Get(FieldMotivation) }

func (a Attributes) Says() string   { return a.Get(FieldSays) }
func (a Attributes) Thinks() string { return a.Get(FieldThinks) }
func (a Attributes) Feels() string  { return a.Get(FieldFeels) }
func (a Attributes) Does() string   { return a.Get(FieldDoes) }

// Persona is immutable reference data describing an archetype.
type Persona struct {
	Alias    string
	Category Category
	Bio      Attributes
	Empathy  Attributes
}

// Clone returns a copy that shares no maps with p.
func (p Persona) Clone() Persona {
	p.Bio = p.Bio.Clone()
	p.Empathy = p.Empathy.Clone()
	return p
}

// Weight ranks an assignment.
type Weight int

const (
	// WeightSecondary marks a secondary assignment.
	WeightSecondary Weight = 1
	// WeightPrimary marks a primary assignment.
	WeightPrimary Weight = 2
)

// Valid reports whether w is primary or secondary.
func (w Weight) Valid() bool {
	return w == WeightPrimary || w == WeightSecondary
}

// Assignment links a subject to a persona.
type Assignment struct {
	SubjectID  string
	Alias      string
	Category   Category
	Weight     Weight
	SelectedAt time.Time
}

func aliasesIn(assignments []Assignment, category Category) []string {
	var aliases []string
	for _, a := range assignments {
		if a.Category == category {
			aliases = append(aliases, a.Alias)
		}
	}
	return aliases
}
