package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/matchbook/internal/persistence"
)

// ReservationRepository implements persistence.ReservationRepository using SQLite.
type ReservationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewReservationRepository creates a new SQLite reservation repository.
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const reservationColumns = `
	id, subject, venue, scheduled_at, party_size, total_price_cents, status,
	created_at, updated_at, confirmed_at, cancelled_at, completed_at,
	cancellation_reason, status_before_cancel, payment_id, refund_id,
	snapshot_hours, snapshot_address, snapshot_phone, snapshot_source,
	snapshot_captured_at, snapshot_digest
`

// CreateReservation inserts a new reservation.
func (r *ReservationRepository) CreateReservation(ctx context.Context, res persistence.Reservation) error {
	if res.ID == "" || res.Subject == "" || res.Venue == "" || res.Status == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			res.ID,
			res.Subject,
			res.Venue,
			formatTime(res.ScheduledAt),
			res.PartySize,
			res.TotalPriceCents,
			res.Status,
			formatTime(res.CreatedAt),
			formatTime(res.UpdatedAt),
			formatNullableTime(res.ConfirmedAt),
			formatNullableTime(res.CancelledAt),
			formatNullableTime(res.CompletedAt),
			res.CancellationReason,
			res.StatusBeforeCancel,
			res.PaymentID,
			res.RefundID,
			res.SnapshotHours,
			res.SnapshotAddress,
			res.SnapshotPhone,
			res.SnapshotSource,
			formatTime(res.SnapshotCapturedAt),
			res.SnapshotDigest,
		)
		return err
	})
}

// GetReservation retrieves a reservation by ID.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	if id == "" {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if err != nil {
		return persistence.Reservation{}, r.mapper.MapError(err)
	}
	return res, nil
}

// ListReservations returns reservations newest first.
func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Venue != "" {
		where = append(where, "venue = ? COLLATE NOCASE")
		args = append(args, filter.Venue)
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var reservations []persistence.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return reservations, nil
}

// UpdateReservation writes the mutable columns of a reservation, guarded by
// its previous status. The existence check and the guarded update share a
// transaction so ErrNotFound and ErrConflict are told apart reliably.
func (r *ReservationRepository) UpdateReservation(ctx context.Context, res persistence.Reservation, expectedStatus string) error {
	const update = `
		UPDATE reservations SET
			status = ?, updated_at = ?, confirmed_at = ?, cancelled_at = ?, completed_at = ?,
			cancellation_reason = ?, status_before_cancel = ?, payment_id = ?, refund_id = ?
		WHERE id = ? AND status = ?
	`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var current string
			if err := tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = ?`, res.ID).Scan(&current); err != nil {
				return r.mapper.MapError(err)
			}
			if current != expectedStatus {
				return fmt.Errorf("%w: reservation %s is %s, expected %s", persistence.ErrConflict, res.ID, current, expectedStatus)
			}

			result, err := tx.ExecContext(ctx, update,
				res.Status,
				formatTime(res.UpdatedAt),
				formatNullableTime(res.ConfirmedAt),
				formatNullableTime(res.CancelledAt),
				formatNullableTime(res.CompletedAt),
				res.CancellationReason,
				res.StatusBeforeCancel,
				res.PaymentID,
				res.RefundID,
				res.ID,
				expectedStatus,
			)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				return persistence.ErrConflict
			}
			return nil
		})
	})
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		res                                 persistence.Reservation
		scheduledAt, createdAt, updatedAt   string
		confirmedAt, cancelledAt, completed sql.NullString
		capturedAt                          string
	)
	err := row.Scan(
		&res.ID,
		&res.Subject,
		&res.Venue,
		&scheduledAt,
		&res.PartySize,
		&res.TotalPriceCents,
		&res.Status,
		&createdAt,
		&updatedAt,
		&confirmedAt,
		&cancelledAt,
		&completed,
		&res.CancellationReason,
		&res.StatusBeforeCancel,
		&res.PaymentID,
		&res.RefundID,
		&res.SnapshotHours,
		&res.SnapshotAddress,
		&res.SnapshotPhone,
		&res.SnapshotSource,
		&capturedAt,
		&res.SnapshotDigest,
	)
	if err != nil {
		return persistence.Reservation{}, err
	}

	if res.ScheduledAt, err = parseTime("scheduled_at", scheduledAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.SnapshotCapturedAt, err = parseTime("snapshot_captured_at", capturedAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.ConfirmedAt, err = parseNullableTime("confirmed_at", confirmedAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.CancelledAt, err = parseNullableTime("cancelled_at", cancelledAt); err != nil {
		return persistence.Reservation{}, err
	}
	if res.CompletedAt, err = parseNullableTime("completed_at", completed); err != nil {
		return persistence.Reservation{}, err
	}
	return res, nil
}
