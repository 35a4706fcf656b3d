package persona

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAssignment(t *testing.T) {
	t.Parallel()

	connector := Persona{Alias: "Connector", Category: CategorySocial}
	listener := Persona{Alias: "Listener", Category: CategorySocial}
	mediator := Persona{Alias: "Mediator", Category: CategorySocial}

	tests := []struct {
		name      string
		existing  []Assignment
		candidate Assignment
		persona   Persona
		want      error
	}{
		{
			name:      "first social primary",
			candidate: assign(CategorySocial, "Connector", WeightPrimary),
			persona:   connector,
		},
		{
			name:      "second social with opposite weight",
			existing:  []Assignment{assign(CategorySocial, "Connector", WeightPrimary)},
			candidate: assign(CategorySocial, "Listener", WeightSecondary),
			persona:   listener,
		},
		{
			name:      "rejects two primaries",
			existing:  []Assignment{assign(CategorySocial, "Connector", WeightPrimary)},
			candidate: assign(CategorySocial, "Listener", WeightPrimary),
			persona:   listener,
			want:      ErrSocialWeights,
		},
		{
			name: "rejects a third social persona",
			existing: []Assignment{
				assign(CategorySocial, "Connector", WeightPrimary),
				assign(CategorySocial, "Listener", WeightSecondary),
			},
			candidate: assign(CategorySocial, "Mediator", WeightSecondary),
			persona:   mediator,
			want:      ErrSocialLimit,
		},
		{
			name:      "rejects duplicate alias",
			existing:  []Assignment{assign(CategorySocial, "Connector", WeightPrimary)},
			candidate: assign(CategorySocial, "Connector", WeightSecondary),
			persona:   connector,
			want:      ErrDuplicateAlias,
		},
		{
			name:      "rejects invalid weight",
			candidate: assign(CategorySocial, "Connector", 3),
			persona:   connector,
			want:      ErrInvalidWeight,
		},
		{
			name:      "rejects category mismatch",
			candidate: assign(CategoryFantasy, "Connector", WeightPrimary),
			persona:   connector,
			want:      ErrCategoryMismatch,
		},
		{
			name: "other categories are not limited",
			existing: []Assignment{
				assign(CategoryFantasy, "Dragon", WeightPrimary),
				assign(CategoryFantasy, "Wizard", WeightPrimary),
			},
			candidate: assign(CategoryFantasy, "Bard", WeightPrimary),
			persona:   Persona{Alias: "Bard", Category: CategoryFantasy},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateAssignment(tc.existing, tc.candidate, tc.persona)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateAssignmentDoesNotMutateExisting(t *testing.T) {
	t.Parallel()

	existing := make([]Assignment, 1, 4)
	existing[0] = assign(CategorySocial, "Connector", WeightPrimary)
	_ = ValidateAssignment(existing, assign(CategorySocial, "Listener", WeightSecondary), Persona{Alias: "Listener", Category: CategorySocial})
	if len(existing) != 1 {
		t.Fatalf("expected existing slice length to remain 1, got %d", len(existing))
	}
}

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	personas, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(personas) == 0 {
		t.Fatal("expected personas in default catalog")
	}
	counts := make(map[Category]int)
	for _, p := range personas {
		counts[p.Category]++
		if p.Empathy.Says() == "" {
			t.Errorf("persona %s missing empathy says field", p.Alias)
		}
	}
	for _, c := range Categories() {
		if counts[c] == 0 {
			t.Errorf("expected at least one %s persona", c)
		}
	}

	_, err = ParseCatalog(strings.NewReader("personas:\n  - alias: X\n    category: unknown\n"))
	if err == nil {
		t.Fatal("expected unknown category to fail")
	}

	_, err = ParseCatalog(strings.NewReader("personas:\n  - alias: X\n    category: social\n  - alias: X\n    category: fantasy\n"))
	if err == nil {
		t.Fatal("expected duplicate alias to fail")
	}
}

func TestAttributesAccessors(t *testing.T) {
	t.Parallel()

	var empty Attributes
	if empty.About() != "" || empty.Clone() != nil {
		t.Fatal("nil attributes should behave as empty")
	}

	a := Attributes{FieldSays: "hi", FieldGoals: "win", "custom": "x"}
	if a.Says() != "hi" || a.Goals() != "win" || a.Get("custom") != "x" {
		t.Fatalf("unexpected accessor values: %v", a)
	}
	keys := a.Keys()
	if strings.Join(keys, ",") != "custom,goals,says" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
