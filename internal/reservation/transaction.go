// Package reservation implements the reservation lifecycle: pricing at
// creation, simulated payment on confirmation, simulated refund on
// cancellation, and strict rejection of any transition the current status
// does not allow.
package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Operation names a lifecycle transition.
type Operation string

const (
	OpConfirm  Operation = "confirm"
	OpCancel   Operation = "cancel"
	OpComplete Operation = "complete"
)

// DefaultMaxPartySize bounds party sizes when no explicit limit is configured.
const DefaultMaxPartySize = 20

var (
	// ErrInvalidStateTransition matches every *InvalidStateTransitionError.
	ErrInvalidStateTransition = errors.New("reservation: invalid state transition")
	// ErrUnknownVenue is returned when the rate table has no entry for the venue.
	ErrUnknownVenue = errors.New("reservation: unknown venue")
	// ErrTransitionAborted is returned when a transition panicked and was rolled back.
	ErrTransitionAborted = errors.New("reservation: transition aborted")
)

// InvalidStateTransitionError reports an attempt to run an operation the
// current status does not permit.
type InvalidStateTransitionError struct {
	ID        string
	Status    Status
	Operation Operation
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("reservation %s: cannot %s while %s", e.ID, e.Operation, e.Status)
}

// Is lets errors.Is match ErrInvalidStateTransition.
func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// PaymentError wraps an error returned by the payment processor during a
// transition.
type PaymentError struct {
	ID        string
	Operation Operation
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s reservation %s: %v", e.Operation, e.ID, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// FieldError reports a constructor argument that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("reservation: %s %s", e.Field, e.Message)
}

// Transaction is one reservation and its lifecycle history. It is not safe for
// concurrent mutation; callers serialise access per reservation.
type Transaction struct {
	ID          string
	Subject     string
	Venue       string
	ScheduledAt time.Time
	PartySize   int
	TotalPrice  Money
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time

	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	CancellationReason string
	StatusBeforeCancel Status
	PaymentID          string
	RefundID           string

	Snapshot Snapshot
}

// NewParams carries the caller supplied fields of a new reservation.
type NewParams struct {
	ID           string
	Subject      string
	Venue        string
	ScheduledAt  time.Time
	PartySize    int
	MaxPartySize int
	Snapshot     Snapshot
}

// New prices and validates a pending reservation.
func New(params NewParams, rates RateTable, now time.Time) (*Transaction, error) {
	subject := strings.TrimSpace(params.Subject)
	venue := strings.TrimSpace(params.Venue)
	maxParty := params.MaxPartySize
	if maxParty <= 0 {
		maxParty = DefaultMaxPartySize
	}

	switch {
	case subject == "":
		return nil, &FieldError{Field: "subject", Message: "is required"}
	case venue == "":
		return nil, &FieldError{Field: "venue", Message: "is required"}
	case params.PartySize < 1:
		return nil, &FieldError{Field: "party_size", Message: "must be at least 1"}
	case params.PartySize > maxParty:
		return nil, &FieldError{Field: "party_size", Message: fmt.Sprintf("must be at most %d", maxParty)}
	case params.ScheduledAt.IsZero():
		return nil, &FieldError{Field: "scheduled_at", Message: "is required"}
	case !params.ScheduledAt.After(now):
		return nil, &FieldError{Field: "scheduled_at", Message: "must be in the future"}
	}

	if rates == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venue)
	}
	rate, ok := rates.Rate(venue)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venue)
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	snapshot := params.Snapshot
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = now
	}

	return &Transaction{
		ID:          id,
		Subject:     subject,
		Venue:       venue,
		ScheduledAt: params.ScheduledAt,
		PartySize:   params.PartySize,
		TotalPrice:  rate.Times(params.PartySize),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Snapshot:    snapshot.Seal(),
	}, nil
}

func (t *Transaction) CanConfirm() bool  { return t.Status == StatusPending }
func (t *Transaction) CanCancel() bool   { return t.Status == StatusPending || t.Status == StatusConfirmed }
func (t *Transaction) CanComplete() bool { return t.Status == StatusConfirmed }

// Confirm charges the reservation and moves it to confirmed. If the charge
// fails the reservation is left exactly as it was.
func (t *Transaction) Confirm(payments PaymentProcessor, at time.Time) error {
	if !t.CanConfirm() {
		return t.invalid(OpConfirm)
	}
	if payments == nil {
		payments = SimulatedPayments{}
	}
	return t.apply(func(next *Transaction) error {
		paymentID, err := payments.Charge(*next)
		if err != nil {
			return &PaymentError{ID: t.ID, Operation: OpConfirm, Err: err}
		}
		next.PaymentID = paymentID
		next.Status = StatusConfirmed
		next.ConfirmedAt = timePtr(at)
		next.UpdatedAt = at
		return nil
	})
}

// Cancel moves a pending or confirmed reservation to cancelled, refunding any
// payment taken. If the refund fails the reservation is left exactly as it was.
func (t *Transaction) Cancel(payments PaymentProcessor, reason string, at time.Time) error {
	if !t.CanCancel() {
		return t.invalid(OpCancel)
	}
	if payments == nil {
		payments = SimulatedPayments{}
	}
	return t.apply(func(next *Transaction) error {
		if next.PaymentID != "" {
			refundID, err := payments.Refund(*next)
			if err != nil {
				return &PaymentError{ID: t.ID, Operation: OpCancel, Err: err}
			}
			next.RefundID = refundID
		}
		next.StatusBeforeCancel = next.Status
		next.Status = StatusCancelled
		next.CancellationReason = strings.TrimSpace(reason)
		next.CancelledAt = timePtr(at)
		next.UpdatedAt = at
		return nil
	})
}

// Complete marks a confirmed reservation as fulfilled.
func (t *Transaction) Complete(at time.Time) error {
	if !t.CanComplete() {
		return t.invalid(OpComplete)
	}
	t.Status = StatusCompleted
	t.CompletedAt = timePtr(at)
	t.UpdatedAt = at
	return nil
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	out.ConfirmedAt = cloneTime(t.ConfirmedAt)
	out.CancelledAt = cloneTime(t.CancelledAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	return &out
}

// apply runs fn against a copy and commits the copy only when fn succeeds.
// A panic inside fn is reported as an error and leaves t unchanged.
func (t *Transaction) apply(fn func(next *Transaction) error) (err error) {
	next := t.Clone()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: reservation %s: %v", ErrTransitionAborted, t.ID, p)
		}
	}()
	if err = fn(next); err != nil {
		return err
	}
	*t = *next
	return nil
}

func (t *Transaction) invalid(op Operation) error {
	return &InvalidStateTransitionError{ID: t.ID, Status: t.Status, Operation: op}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
