package persistence

import "context"

// PersonaRepository stores catalog personas.
type PersonaRepository interface {
	UpsertPersona(ctx context.Context, persona Persona) error
	GetPersona(ctx context.Context, alias string) (Persona, error)
	ListPersonas(ctx context.Context, category string) ([]Persona, error)
}

// AssignmentRepository stores subject to persona assignments.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, assignment Assignment) error
	ListAssignments(ctx context.Context, subjectID string) ([]Assignment, error)
	ListAssignmentsForSubjects(ctx context.Context, subjectIDs []string) (map[string][]Assignment, error)
	DeleteAssignment(ctx context.Context, subjectID, alias string) error
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	Subject string
	Status  string
	Venue   string
	Limit   int
}

// ReservationRepository stores reservations.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	// UpdateReservation replaces the stored record only while its status still
	// equals expectedStatus, returning ErrConflict otherwise.
	UpdateReservation(ctx context.Context, reservation Reservation, expectedStatus string) error
}
