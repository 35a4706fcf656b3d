package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/reservation"
	"github.com/example/matchbook/internal/venue"
)

func newVenueDirectory(t *testing.T) *venue.Directory {
	t.Helper()
	d, err := venue.Default()
	if err != nil {
		t.Fatalf("load venues: %v", err)
	}
	return d
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("res-%d", n)
	}
}

func newReservationServiceForTest(t *testing.T, repo *reservationRepoStub, opts ReservationServiceOptions) *ReservationService {
	t.Helper()
	return NewReservationServiceWithOptions(repo, newVenueDirectory(t), sequentialIDs(), nowStub, opts)
}

func createPending(t *testing.T, svc *ReservationService) reservation.Transaction {
	t.Helper()
	tx, err := svc.CreateReservation(context.Background(), CreateReservationParams{
		Subject:     "Ada",
		Venue:       "MET Museum",
		ScheduledAt: fixedNow.Add(72 * time.Hour),
		PartySize:   2,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return tx
}

func TestReservationService_CreateReservation(t *testing.T) {
	t.Run("prices and snapshots the venue", func(t *testing.T) {
		repo := newReservationRepoStub()
		reg := prometheus.NewRegistry()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{Metrics: metrics.MustNew(reg)})

		tx := createPending(t, svc)

		if tx.ID != "res-1" {
			t.Fatalf("expected generated id res-1, got %q", tx.ID)
		}
		if tx.TotalPrice.String() != "60.00" {
			t.Fatalf("expected 60.00, got %s", tx.TotalPrice)
		}
		if tx.Status != reservation.StatusPending {
			t.Fatalf("expected pending, got %s", tx.Status)
		}
		if !tx.Snapshot.Verify() || tx.Snapshot.Address == "" || tx.Snapshot.Source != "embedded" {
			t.Fatalf("unexpected snapshot %+v", tx.Snapshot)
		}
		if diff := cmp.Diff(tx, repo.stored(tx.ID)); diff != "" {
			t.Fatalf("stored reservation mismatch (-returned +stored):\n%s", diff)
		}
		if got := testutil.CollectAndCount(reg, "matchbook_reservation_created_total"); got != 1 {
			t.Fatalf("expected created counter, got %d series", got)
		}
	})

	tests := []struct {
		name   string
		params CreateReservationParams
		field  string
	}{
		{"unknown venue", CreateReservationParams{Subject: "Ada", Venue: "Louvre", ScheduledAt: fixedNow.Add(time.Hour), PartySize: 1}, "venue"},
		{"blank subject", CreateReservationParams{Venue: "MoMA", ScheduledAt: fixedNow.Add(time.Hour), PartySize: 1}, "subject"},
		{"party too large", CreateReservationParams{Subject: "Ada", Venue: "MoMA", ScheduledAt: fixedNow.Add(time.Hour), PartySize: 5}, "party_size"},
		{"past schedule", CreateReservationParams{Subject: "Ada", Venue: "MoMA", ScheduledAt: fixedNow.Add(-time.Hour), PartySize: 1}, "scheduled_at"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			repo := newReservationRepoStub()
			svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{MaxPartySize: 4})

			_, err := svc.CreateReservation(context.Background(), tc.params)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected %s validation error, got %v", tc.field, vErr.FieldErrors)
			}
			if len(repo.byID) != 0 {
				t.Fatalf("expected nothing stored, got %d", len(repo.byID))
			}
		})
	}
}

func TestReservationService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm then complete", func(t *testing.T) {
		repo := newReservationRepoStub()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{})
		tx := createPending(t, svc)

		confirmed, err := svc.ConfirmReservation(ctx, tx.ID)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if confirmed.Status != reservation.StatusConfirmed || confirmed.PaymentID == "" {
			t.Fatalf("unexpected confirmed reservation %+v", confirmed)
		}

		_, err = svc.ConfirmReservation(ctx, tx.ID)
		var sErr *reservation.InvalidStateTransitionError
		if !errors.As(err, &sErr) {
			t.Fatalf("expected InvalidStateTransitionError, got %v", err)
		}
		if sErr.Status != reservation.StatusConfirmed || sErr.Operation != reservation.OpConfirm {
			t.Fatalf("unexpected transition error %+v", sErr)
		}

		completed, err := svc.CompleteReservation(ctx, tx.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if completed.Status != reservation.StatusCompleted || completed.CompletedAt == nil {
			t.Fatalf("unexpected completed reservation %+v", completed)
		}

		_, err = svc.CancelReservation(ctx, tx.ID, "too late")
		if !errors.Is(err, reservation.ErrInvalidStateTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}
		if got := repo.stored(tx.ID).Status; got != reservation.StatusCompleted {
			t.Fatalf("expected stored status completed, got %s", got)
		}
	})

	t.Run("cancel refunds confirmed reservations", func(t *testing.T) {
		repo := newReservationRepoStub()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{})
		tx := createPending(t, svc)

		if _, err := svc.ConfirmReservation(ctx, tx.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		cancelled, err := svc.CancelReservation(ctx, tx.ID, "weather")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.RefundID == "" || cancelled.StatusBeforeCancel != reservation.StatusConfirmed {
			t.Fatalf("expected refund of confirmed reservation, got %+v", cancelled)
		}
		if cancelled.CancellationReason != "weather" {
			t.Fatalf("unexpected reason %q", cancelled.CancellationReason)
		}
	})

	t.Run("payment failure leaves the stored reservation unchanged", func(t *testing.T) {
		repo := newReservationRepoStub()
		reg := prometheus.NewRegistry()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{
			Payments: reservation.SimulatedPayments{FailCharges: true},
			Metrics:  metrics.MustNew(reg),
		})
		tx := createPending(t, svc)
		before := repo.stored(tx.ID)

		_, err := svc.ConfirmReservation(ctx, tx.ID)
		if !errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed, got %v", err)
		}
		if !errors.Is(err, reservation.ErrPaymentDeclined) {
			t.Fatalf("expected declined cause to be kept, got %v", err)
		}
		if diff := cmp.Diff(before, repo.stored(tx.ID)); diff != "" {
			t.Fatalf("stored reservation changed (-before +after):\n%s", diff)
		}
		if repo.updates != 0 {
			t.Fatalf("expected no updates, got %d", repo.updates)
		}
		if got := testutil.CollectAndCount(reg, "matchbook_reservation_transitions_total"); got != 1 {
			t.Fatalf("expected one transition series, got %d", got)
		}
	})

	t.Run("processor panic is an unexpected error, not a payment failure", func(t *testing.T) {
		repo := newReservationRepoStub()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{Payments: panickingPayments{}})
		tx := createPending(t, svc)
		before := repo.stored(tx.ID)

		_, err := svc.ConfirmReservation(ctx, tx.ID)
		if !errors.Is(err, reservation.ErrTransitionAborted) {
			t.Fatalf("expected ErrTransitionAborted, got %v", err)
		}
		if errors.Is(err, ErrPaymentFailed) {
			t.Fatalf("panic must not be reported as a payment failure: %v", err)
		}
		if kind := ErrorKind(err); kind != "unexpected" {
			t.Fatalf("expected unexpected error kind, got %q", kind)
		}
		if diff := cmp.Diff(before, repo.stored(tx.ID)); diff != "" {
			t.Fatalf("stored reservation changed (-before +after):\n%s", diff)
		}
	})

	t.Run("stale status maps to concurrent update", func(t *testing.T) {
		repo := newReservationRepoStub()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{})
		tx := createPending(t, svc)
		repo.updateErr = persistence.ErrConflict

		_, err := svc.ConfirmReservation(ctx, tx.ID)
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
		}
		if ErrorKind(err) != "concurrent_update" {
			t.Fatalf("unexpected kind %q", ErrorKind(err))
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		svc := newReservationServiceForTest(t, newReservationRepoStub(), ReservationServiceOptions{})
		if _, err := svc.CompleteReservation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := svc.GetReservation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent confirms charge once", func(t *testing.T) {
		repo := newReservationRepoStub()
		svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{})
		tx := createPending(t, svc)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.ConfirmReservation(ctx, tx.ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, reservation.ErrInvalidStateTransition):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one confirm, got %d", succeeded)
		}
		if repo.updates != 1 {
			t.Fatalf("expected one stored update, got %d", repo.updates)
		}
	})
}

func TestReservationService_ListReservations(t *testing.T) {
	repo := newReservationRepoStub()
	svc := newReservationServiceForTest(t, repo, ReservationServiceOptions{})
	first := createPending(t, svc)
	createPending(t, svc)
	if _, err := svc.ConfirmReservation(context.Background(), first.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	confirmed, err := svc.ListReservations(context.Background(), ReservationFilter{Status: reservation.StatusConfirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].ID != first.ID {
		t.Fatalf("expected only %s, got %+v", first.ID, confirmed)
	}

	if _, err := svc.ListReservations(context.Background(), ReservationFilter{Status: "lost"}); err == nil {
		t.Fatal("expected validation error for unknown status")
	}
	if _, err := svc.ListReservations(context.Background(), ReservationFilter{Limit: -1}); err == nil {
		t.Fatal("expected validation error for negative limit")
	}
}
