// Package repository adapts the persistence layer to the repository
// interfaces consumed by the application services.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/persona"
	"github.com/example/matchbook/internal/reservation"
)

// PersonaStoreBackend is the persistence contract PersonaStore builds on.
type PersonaStoreBackend interface {
	persistence.PersonaRepository
	persistence.AssignmentRepository
}

// PersonaStore implements application.PersonaRepository and
// application.AssignmentRepository.
type PersonaStore struct {
	repo        PersonaStoreBackend
	idGenerator func() string
}

// NewPersonaStore wraps repo. A nil idGenerator issues random UUIDs.
func NewPersonaStore(repo PersonaStoreBackend, idGenerator func() string) *PersonaStore {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &PersonaStore{repo: repo, idGenerator: idGenerator}
}

var (
	_ application.PersonaRepository    = (*PersonaStore)(nil)
	_ application.AssignmentRepository = (*PersonaStore)(nil)
)

func (s *PersonaStore) UpsertPersona(ctx context.Context, p persona.Persona) error {
	return s.repo.UpsertPersona(ctx, toPersistencePersona(p))
}

func (s *PersonaStore) GetPersona(ctx context.Context, alias string) (persona.Persona, error) {
	stored, err := s.repo.GetPersona(ctx, alias)
	if err != nil {
		return persona.Persona{}, err
	}
	return toDomainPersona(stored), nil
}

func (s *PersonaStore) ListPersonas(ctx context.Context, category persona.Category) ([]persona.Persona, error) {
	models, err := s.repo.ListPersonas(ctx, string(category))
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	out := make([]persona.Persona, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainPersona(m))
	}
	return out, nil
}

func (s *PersonaStore) CreateAssignment(ctx context.Context, a persona.Assignment) error {
	return s.repo.CreateAssignment(ctx, persistence.Assignment{
		ID:         s.idGenerator(),
		SubjectID:  a.SubjectID,
		Alias:      a.Alias,
		Category:   string(a.Category),
		Weight:     int(a.Weight),
		SelectedAt: a.SelectedAt,
	})
}

func (s *PersonaStore) ListAssignments(ctx context.Context, subjectID string) ([]persona.Assignment, error) {
	models, err := s.repo.ListAssignments(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return toDomainAssignments(models), nil
}

func (s *PersonaStore) ListAssignmentsForSubjects(ctx context.Context, subjectIDs []string) (map[string][]persona.Assignment, error) {
	models, err := s.repo.ListAssignmentsForSubjects(ctx, subjectIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]persona.Assignment, len(models))
	for subject, list := range models {
		out[subject] = toDomainAssignments(list)
	}
	return out, nil
}

func (s *PersonaStore) DeleteAssignment(ctx context.Context, subjectID, alias string) error {
	return s.repo.DeleteAssignment(ctx, subjectID, alias)
}

// ReservationStore implements application.ReservationRepository.
type ReservationStore struct {
	repo persistence.ReservationRepository
}

// NewReservationStore wraps repo.
func NewReservationStore(repo persistence.ReservationRepository) *ReservationStore {
	return &ReservationStore{repo: repo}
}

var _ application.ReservationRepository = (*ReservationStore)(nil)

func (s *ReservationStore) CreateReservation(ctx context.Context, tx reservation.Transaction) error {
	return s.repo.CreateReservation(ctx, toPersistenceReservation(tx))
}

func (s *ReservationStore) GetReservation(ctx context.Context, id string) (reservation.Transaction, error) {
	stored, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return reservation.Transaction{}, err
	}
	return toDomainReservation(stored), nil
}

func (s *ReservationStore) ListReservations(ctx context.Context, filter application.ReservationFilter) ([]reservation.Transaction, error) {
	models, err := s.repo.ListReservations(ctx, persistence.ReservationFilter{
		Subject: filter.Subject,
		Status:  string(filter.Status),
		Venue:   filter.Venue,
		Limit:   filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	out := make([]reservation.Transaction, 0, len(models))
	for _, m := range models {
		out = append(out, toDomainReservation(m))
	}
	return out, nil
}

func (s *ReservationStore) UpdateReservation(ctx context.Context, tx reservation.Transaction, expected reservation.Status) error {
	return s.repo.UpdateReservation(ctx, toPersistenceReservation(tx), string(expected))
}

func toPersistencePersona(p persona.Persona) persistence.Persona {
	return persistence.Persona{
		Alias:    p.Alias,
		Category: string(p.Category),
		Bio:      map[string]string(p.Bio.Clone()),
		Empathy:  map[string]string(p.Empathy.Clone()),
	}
}

func toDomainPersona(m persistence.Persona) persona.Persona {
	return persona.Persona{
		Alias:    m.Alias,
		Category: persona.Category(m.Category),
		Bio:      persona.Attributes(m.Bio),
		Empathy:  persona.Attributes(m.Empathy),
	}
}

func toDomainAssignments(models []persistence.Assignment) []persona.Assignment {
	if len(models) == 0 {
		return nil
	}
	out := make([]persona.Assignment, 0, len(models))
	for _, m := range models {
		out = append(out, persona.Assignment{
			SubjectID:  m.SubjectID,
			Alias:      m.Alias,
			Category:   persona.Category(m.Category),
			Weight:     persona.Weight(m.Weight),
			SelectedAt: m.SelectedAt,
		})
	}
	return out
}

func toPersistenceReservation(tx reservation.Transaction) persistence.Reservation {
	return persistence.Reservation{
		ID:                 tx.ID,
		Subject:            tx.Subject,
		Venue:              tx.Venue,
		ScheduledAt:        tx.ScheduledAt,
		PartySize:          tx.PartySize,
		TotalPriceCents:    int64(tx.TotalPrice),
		Status:             string(tx.Status),
		CreatedAt:          tx.CreatedAt,
		UpdatedAt:          tx.UpdatedAt,
		ConfirmedAt:        copyTime(tx.ConfirmedAt),
		CancelledAt:        copyTime(tx.CancelledAt),
		CompletedAt:        copyTime(tx.CompletedAt),
		CancellationReason: tx.CancellationReason,
		StatusBeforeCancel: string(tx.StatusBeforeCancel),
		PaymentID:          tx.PaymentID,
		RefundID:           tx.RefundID,
		SnapshotHours:      tx.Snapshot.Hours,
		SnapshotAddress:    tx.Snapshot.Address,
		SnapshotPhone:      tx.Snapshot.Phone,
		SnapshotSource:     tx.Snapshot.Source,
		SnapshotCapturedAt: tx.Snapshot.CapturedAt,
		SnapshotDigest:     tx.Snapshot.Digest,
	}
}

func toDomainReservation(m persistence.Reservation) reservation.Transaction {
	return reservation.Transaction{
		ID:                 m.ID,
		Subject:            m.Subject,
		Venue:              m.Venue,
		ScheduledAt:        m.ScheduledAt,
		PartySize:          m.PartySize,
		TotalPrice:         reservation.Money(m.TotalPriceCents),
		Status:             reservation.Status(m.Status),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		ConfirmedAt:        copyTime(m.ConfirmedAt),
		CancelledAt:        copyTime(m.CancelledAt),
		CompletedAt:        copyTime(m.CompletedAt),
		CancellationReason: m.CancellationReason,
		StatusBeforeCancel: reservation.Status(m.StatusBeforeCancel),
		PaymentID:          m.PaymentID,
		RefundID:           m.RefundID,
		Snapshot: reservation.Snapshot{
			Hours:      m.SnapshotHours,
			Address:    m.SnapshotAddress,
			Phone:      m.SnapshotPhone,
			Source:     m.SnapshotSource,
			CapturedAt: m.SnapshotCapturedAt,
			Digest:     m.SnapshotDigest,
		},
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
