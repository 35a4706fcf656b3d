package testfixtures

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/persona"
	"github.com/example/matchbook/internal/reservation"
)

var (
	subjectCounter     uint64
	reservationCounter uint64
)

var referenceTime = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NextSubjectID returns a unique subject identifier.
func NextSubjectID() string {
	return fmt.Sprintf("subject-%03d", atomic.AddUint64(&subjectCounter, 1))
}

// ---------------------------- Persona fixtures ----------------------------

// Persona returns a small catalog entry with bio and empathy fields filled in.
func Persona(alias string, category persona.Category) persona.Persona {
	return persona.Persona{
		Alias:    alias,
		Category: category,
		Bio: persona.Attributes{
			persona.FieldAbout:      alias + " in a sentence.",
			persona.FieldGoals:      "Finish what " + alias + " starts.",
			persona.FieldMotivation: "Curiosity.",
		},
		Empathy: persona.Attributes{
			persona.FieldSays:   "Hello from " + alias + ".",
			persona.FieldThinks: "What next?",
			persona.FieldFeels:  "Calm.",
			persona.FieldDoes:   "Shows up on time.",
		},
	}
}

// Catalog returns the embedded default catalog and fails the test when it
// cannot be parsed.
func Catalog(tb testing.TB) []persona.Persona {
	tb.Helper()
	catalog, err := persona.DefaultCatalog()
	if err != nil {
		tb.Fatalf("load persona catalog: %v", err)
	}
	return catalog
}

// AssignmentOption configures the generated assignment.
type AssignmentOption func(*persona.Assignment)

// NewAssignment returns a primary assignment of alias to subjectID selected at
// ReferenceTime.
func NewAssignment(subjectID, alias string, category persona.Category, opts ...AssignmentOption) persona.Assignment {
	a := persona.Assignment{
		SubjectID:  subjectID,
		Alias:      alias,
		Category:   category,
		Weight:     persona.WeightPrimary,
		SelectedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Secondary marks the assignment as secondary.
func Secondary() AssignmentOption {
	return func(a *persona.Assignment) {
		a.Weight = persona.WeightSecondary
	}
}

// WithSelectedAt overrides the selection time.
func WithSelectedAt(at time.Time) AssignmentOption {
	return func(a *persona.Assignment) {
		a.SelectedAt = at
	}
}

// -------------------------- Reservation fixtures --------------------------

// ReservationFixture is a deterministic reservation that can be materialised
// for application or persistence tests.
type ReservationFixture struct {
	ID          string
	Subject     string
	Venue       string
	ScheduledAt time.Time
	PartySize   int
	Rate        reservation.Money
	Status      reservation.Status
	CreatedAt   time.Time
}

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a pending reservation for two at the MET two
// days after ReferenceTime.
func NewReservationFixture(opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ReservationFixture{
		ID:          fmt.Sprintf("res-%03d", idx),
		Subject:     fmt.Sprintf("Subject %03d", idx),
		Venue:       "MET Museum",
		ScheduledAt: referenceTime.Add(48 * time.Hour),
		PartySize:   2,
		Rate:        3000,
		Status:      reservation.StatusPending,
		CreatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationID overrides the reservation identifier.
func WithReservationID(id string) ReservationOption {
	return func(f *ReservationFixture) {
		f.ID = id
	}
}

// WithSubject overrides the booking subject.
func WithSubject(subject string) ReservationOption {
	return func(f *ReservationFixture) {
		f.Subject = subject
	}
}

// WithVenue overrides the venue and its per-person rate.
func WithVenue(name string, rate reservation.Money) ReservationOption {
	return func(f *ReservationFixture) {
		f.Venue = name
		f.Rate = rate
	}
}

// WithPartySize overrides the party size.
func WithPartySize(n int) ReservationOption {
	return func(f *ReservationFixture) {
		f.PartySize = n
	}
}

// WithStatus moves the reservation to status through the regular lifecycle
// when it is materialised.
func WithStatus(status reservation.Status) ReservationOption {
	return func(f *ReservationFixture) {
		f.Status = status
	}
}

// Transaction builds the domain reservation, driving it through the
// lifecycle to reach the fixture's status. Payments are simulated.
func (f ReservationFixture) Transaction() (reservation.Transaction, error) {
	tx, err := reservation.New(reservation.NewParams{
		ID:          f.ID,
		Subject:     f.Subject,
		Venue:       f.Venue,
		ScheduledAt: f.ScheduledAt,
		PartySize:   f.PartySize,
		Snapshot: reservation.Snapshot{
			Hours:   "10:00-17:00",
			Address: "1 Fixture Way",
			Phone:   "+1 555-0100",
			Source:  "fixture",
		},
	}, reservation.StaticRates{f.Venue: f.Rate}, f.CreatedAt)
	if err != nil {
		return reservation.Transaction{}, err
	}

	step := f.CreatedAt.Add(time.Minute)
	switch f.Status {
	case reservation.StatusPending:
	case reservation.StatusConfirmed:
		err = tx.Confirm(nil, step)
	case reservation.StatusCompleted:
		if err = tx.Confirm(nil, step); err == nil {
			err = tx.Complete(step.Add(time.Minute))
		}
	case reservation.StatusCancelled:
		err = tx.Cancel(nil, "fixture", step)
	default:
		err = fmt.Errorf("unsupported fixture status %q", f.Status)
	}
	if err != nil {
		return reservation.Transaction{}, err
	}
	return *tx, nil
}

// Persistence returns the stored form of the fixture.
func (f ReservationFixture) Persistence() (persistence.Reservation, error) {
	tx, err := f.Transaction()
	if err != nil {
		return persistence.Reservation{}, err
	}
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
		ConfirmedAt:        tx.ConfirmedAt,
		CancelledAt:        tx.CancelledAt,
		CompletedAt:        tx.CompletedAt,
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
	}, nil
}
