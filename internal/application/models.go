package application

import (
	"context"
	"time"

	"github.com/example/matchbook/internal/persona"
	"github.com/example/matchbook/internal/reservation"
)

// PersonaRepository captures the catalog operations needed by PersonaService.
type PersonaRepository interface {
	UpsertPersona(ctx context.Context, p persona.Persona) error
	GetPersona(ctx context.Context, alias string) (persona.Persona, error)
	ListPersonas(ctx context.Context, category persona.Category) ([]persona.Persona, error)
}

// AssignmentRepository captures the assignment operations needed by PersonaService.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, assignment persona.Assignment) error
	ListAssignments(ctx context.Context, subjectID string) ([]persona.Assignment, error)
	ListAssignmentsForSubjects(ctx context.Context, subjectIDs []string) (map[string][]persona.Assignment, error)
	DeleteAssignment(ctx context.Context, subjectID, alias string) error
}

// ReservationRepository captures the persistence operations needed by ReservationService.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, tx reservation.Transaction) error
	GetReservation(ctx context.Context, id string) (reservation.Transaction, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]reservation.Transaction, error)
	// UpdateReservation persists tx only while the stored status is still expected.
	UpdateReservation(ctx context.Context, tx reservation.Transaction, expected reservation.Status) error
}

// VenueDirectory prices venues and captures their published details.
type VenueDirectory interface {
	reservation.RateTable
	Snapshot(venue string, at time.Time) (reservation.Snapshot, error)
}

// Locker serialises work on one key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AssignPersonaParams wraps the data required to assign a persona to a subject.
type AssignPersonaParams struct {
	SubjectID string
	Alias     string
	Weight    persona.Weight
}

// RankedMatch is one candidate scored against a subject.
type RankedMatch struct {
	SubjectID string
	Breakdown persona.MatchBreakdown
}

// CreateReservationParams wraps caller supplied reservation fields.
type CreateReservationParams struct {
	Subject     string
	Venue       string
	ScheduledAt time.Time
	PartySize   int
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	Subject string
	Status  reservation.Status
	Venue   string
	Limit   int
}
