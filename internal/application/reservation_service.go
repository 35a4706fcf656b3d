package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/matchbook/internal/locking"
	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/reservation"
)

// ReservationServiceOptions tunes optional ReservationService behaviour.
type ReservationServiceOptions struct {
	MaxPartySize int
	Payments     reservation.PaymentProcessor
	Locker       Locker
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// ReservationService creates reservations and drives their lifecycle.
type ReservationService struct {
	reservations ReservationRepository
	venues       VenueDirectory
	payments     reservation.PaymentProcessor
	locker       Locker
	idGenerator  func() string
	now          func() time.Time
	maxPartySize int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewReservationService constructs a reservation service with default options.
func NewReservationService(reservations ReservationRepository, venues VenueDirectory, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithOptions(reservations, venues, idGenerator, now, ReservationServiceOptions{})
}

// NewReservationServiceWithOptions constructs a reservation service.
func NewReservationServiceWithOptions(reservations ReservationRepository, venues VenueDirectory, idGenerator func() string, now func() time.Time, opts ReservationServiceOptions) *ReservationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if opts.Payments == nil {
		opts.Payments = reservation.SimulatedPayments{}
	}
	if opts.Locker == nil {
		opts.Locker = locking.NewKeyedMutex()
	}
	if opts.MaxPartySize <= 0 {
		opts.MaxPartySize = reservation.DefaultMaxPartySize
	}
	return &ReservationService{
		reservations: reservations,
		venues:       venues,
		payments:     opts.Payments,
		locker:       opts.Locker,
		idGenerator:  idGenerator,
		now:          now,
		maxPartySize: opts.MaxPartySize,
		metrics:      opts.Metrics,
		logger:       defaultLogger(opts.Logger),
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// CreateReservation prices a new pending reservation and captures the venue's
// published details.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (tx reservation.Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil || s.venues == nil {
		err = fmt.Errorf("reservation service not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateReservation",
		"subject", params.Subject,
		"venue", params.Venue,
		"party_size", params.PartySize,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", tx.ID, "total_price", tx.TotalPrice.String()).InfoContext(ctx, "reservation created")
	}()

	now := s.now()
	var snapshot reservation.Snapshot
	if venue := strings.TrimSpace(params.Venue); venue != "" {
		snapshot, err = s.venues.Snapshot(venue, now)
		if err != nil {
			err = newValidationError("venue", "unknown venue")
			return
		}
	}

	var created *reservation.Transaction
	created, err = reservation.New(reservation.NewParams{
		ID:           s.idGenerator(),
		Subject:      params.Subject,
		Venue:        params.Venue,
		ScheduledAt:  params.ScheduledAt,
		PartySize:    params.PartySize,
		MaxPartySize: s.maxPartySize,
		Snapshot:     snapshot,
	}, s.venues, now)
	if err != nil {
		err = mapReservationDomainError(err)
		return
	}

	if err = s.reservations.CreateReservation(ctx, *created); err != nil {
		err = mapReservationRepoError(err)
		return
	}
	s.metrics.ReservationCreated()
	tx = *created
	return
}

// GetReservation returns a reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (reservation.Transaction, error) {
	if s == nil {
		return reservation.Transaction{}, fmt.Errorf("ReservationService is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return reservation.Transaction{}, newValidationError("id", "reservation id is required")
	}
	if s.reservations == nil {
		return reservation.Transaction{}, ErrNotFound
	}
	tx, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		err = mapReservationRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			s.loggerWith(ctx, "GetReservation", "reservation_id", id).
				ErrorContext(ctx, "failed to get reservation", "error", err, "error_kind", ErrorKind(err))
		}
		return reservation.Transaction{}, err
	}
	return tx, nil
}

// ListReservations returns reservations newest first.
func (s *ReservationService) ListReservations(ctx context.Context, filter ReservationFilter) (list []reservation.Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		err = newValidationError("status", "status must be one of pending, confirmed, cancelled, completed")
		return
	}
	if filter.Limit < 0 {
		err = newValidationError("limit", "limit must not be negative")
		return
	}
	if s.reservations == nil {
		return nil, nil
	}

	list, err = s.reservations.ListReservations(ctx, filter)
	if err != nil {
		err = mapReservationRepoError(err)
		s.loggerWith(ctx, "ListReservations", "subject", filter.Subject, "status", string(filter.Status)).
			ErrorContext(ctx, "failed to list reservations", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// ConfirmReservation charges a pending reservation.
func (s *ReservationService) ConfirmReservation(ctx context.Context, id string) (reservation.Transaction, error) {
	return s.transition(ctx, id, reservation.OpConfirm, func(tx *reservation.Transaction, at time.Time) error {
		return tx.Confirm(s.payments, at)
	})
}

// CancelReservation cancels a pending or confirmed reservation, refunding any
// payment.
func (s *ReservationService) CancelReservation(ctx context.Context, id, reason string) (reservation.Transaction, error) {
	return s.transition(ctx, id, reservation.OpCancel, func(tx *reservation.Transaction, at time.Time) error {
		return tx.Cancel(s.payments, reason, at)
	})
}

// CompleteReservation marks a confirmed reservation as fulfilled.
func (s *ReservationService) CompleteReservation(ctx context.Context, id string) (reservation.Transaction, error) {
	return s.transition(ctx, id, reservation.OpComplete, func(tx *reservation.Transaction, at time.Time) error {
		return tx.Complete(at)
	})
}

// transition loads the reservation under its lock, applies op to a copy and
// persists the copy guarded by the status it was loaded with. Any failure
// leaves the stored reservation unchanged.
func (s *ReservationService) transition(ctx context.Context, id string, op reservation.Operation, apply func(*reservation.Transaction, time.Time) error) (result reservation.Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		err = newValidationError("id", "reservation id is required")
		return
	}

	logger := s.loggerWith(ctx, "Transition", "reservation_id", id, "transition", string(op))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = ErrorKind(err)
			logger.ErrorContext(ctx, "reservation transition failed", "error", err, "error_kind", outcome)
		} else {
			logger.With("status", string(result.Status)).InfoContext(ctx, "reservation transitioned")
		}
		s.metrics.Transition(string(op), outcome)
	}()

	var unlock func()
	unlock, err = s.locker.Lock(ctx, "reservation:"+id)
	if err != nil {
		return
	}
	defer unlock()

	var current reservation.Transaction
	current, err = s.reservations.GetReservation(ctx, id)
	if err != nil {
		err = mapReservationRepoError(err)
		return
	}

	next := current.Clone()
	if err = apply(next, s.now()); err != nil {
		err = mapReservationDomainError(err)
		return
	}

	if err = s.reservations.UpdateReservation(ctx, *next, current.Status); err != nil {
		err = mapReservationRepoError(err)
		return
	}
	result = *next
	return
}

func mapReservationDomainError(err error) error {
	var (
		fErr *reservation.FieldError
		pErr *reservation.PaymentError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fErr):
		return newValidationError(fErr.Field, fErr.Field+" "+fErr.Message)
	case errors.Is(err, reservation.ErrUnknownVenue):
		return newValidationError("venue", "unknown venue")
	case errors.As(err, &pErr):
		return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	return err
}

func mapReservationRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("reservation", "reservation violates storage constraints")
	}
	return err
}
