package persona

import (
	"errors"
	"fmt"
)

// MaxSocialAssignments is the number of social personas a subject may hold.
const MaxSocialAssignments = 2

var (
	// ErrInvalidWeight is returned for weights other than primary or secondary.
	ErrInvalidWeight = errors.New("persona: weight must be 1 or 2")
	// ErrCategoryMismatch is returned when an assignment's category differs from its persona.
	ErrCategoryMismatch = errors.New("persona: assignment category does not match persona")
	// ErrDuplicateAlias is returned when a subject already holds the alias.
	ErrDuplicateAlias = errors.New("persona: alias already assigned")
	// ErrSocialLimit is returned when a subject would exceed the social assignment limit.
	ErrSocialLimit = errors.New("persona: social assignment limit reached")
	// ErrSocialWeights is returned when two social assignments share the same weight.
	ErrSocialWeights = errors.New("persona: social assignments need one primary and one secondary")
)

// ValidateAssignment checks a candidate assignment against the persona it
// refers to and the subject's existing assignments.
func ValidateAssignment(existing []Assignment, candidate Assignment, p Persona) error {
	if !candidate.Weight.Valid() {
		return ErrInvalidWeight
	}
	if candidate.Category != p.Category {
		return fmt.Errorf("%w: %s is %s", ErrCategoryMismatch, p.Alias, p.Category)
	}
	return ValidateAssignments(append(append([]Assignment(nil), existing...), candidate))
}

// ValidateAssignments checks the rules that hold across one subject's full set
// of assignments.
func ValidateAssignments(assignments []Assignment) error {
	seen := make(map[string]struct{}, len(assignments))
	var social []Assignment
	for _, a := range assignments {
		if !a.Weight.Valid() {
			return ErrInvalidWeight
		}
		if _, dup := seen[a.Alias]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAlias, a.Alias)
		}
		seen[a.Alias] = struct{}{}
		if a.Category == CategorySocial {
			social = append(social, a)
		}
	}

	if len(social) > MaxSocialAssignments {
		return ErrSocialLimit
	}
	if len(social) == MaxSocialAssignments && social[0].Weight == social[1].Weight {
		return ErrSocialWeights
	}
	return nil
}
