package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/reservation"
)

type reservationService interface {
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (reservation.Transaction, error)
	GetReservation(ctx context.Context, id string) (reservation.Transaction, error)
	ListReservations(ctx context.Context, filter application.ReservationFilter) ([]reservation.Transaction, error)
	ConfirmReservation(ctx context.Context, id string) (reservation.Transaction, error)
	CancelReservation(ctx context.Context, id, reason string) (reservation.Transaction, error)
	CompleteReservation(ctx context.Context, id string) (reservation.Transaction, error)
}

type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := orDefault(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").
			ErrorContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params, fieldErrs := req.toParams()
	if len(fieldErrs) > 0 {
		h.responder.writeFieldErrors(r.Context(), w, fieldErrs)
		return
	}

	logger := h.log(r.Context(), "Create", "subject", params.Subject, "venue", params.Venue)
	tx, err := h.service.CreateReservation(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("reservation_id", tx.ID).InfoContext(r.Context(), "reservation created")
	w.Header().Set("Location", "/reservations/"+url.PathEscape(tx.ID))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reservationResponse{Reservation: toReservationDTO(tx)})
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}
	tx, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(tx)})
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	filter := application.ReservationFilter{
		Subject: strings.TrimSpace(query.Get("subject")),
		Status:  reservation.Status(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		Venue:   strings.TrimSpace(query.Get("venue")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.writeFieldErrors(r.Context(), w, map[string]string{"limit": "件数は整数で指定してください。"})
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.ListReservations(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := listReservationsResponse{Reservations: make([]reservationDTO, 0, len(list))}
	for _, tx := range list {
		out.Reservations = append(out.Reservations, toReservationDTO(tx))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, reservation.OpConfirm, func(ctx context.Context, id string) (reservation.Transaction, error) {
		return h.service.ConfirmReservation(ctx, id)
	})
}

func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, reservation.OpComplete, func(ctx context.Context, id string) (reservation.Transaction, error) {
		return h.service.CompleteReservation(ctx, id)
	})
}

// Cancel accepts an optional {"reason": "..."} body.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReservationRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
	}
	h.transition(w, r, reservation.OpCancel, func(ctx context.Context, id string) (reservation.Transaction, error) {
		return h.service.CancelReservation(ctx, id, req.Reason)
	})
}

func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, op reservation.Operation, apply func(context.Context, string) (reservation.Transaction, error)) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Transition", "reservation_id", id, "transition", string(op))
	tx, err := apply(r.Context(), id)
	if err != nil {
		logger.ErrorContext(r.Context(), "reservation transition failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("status", string(tx.Status)).InfoContext(r.Context(), "reservation transitioned")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, reservationResponse{Reservation: toReservationDTO(tx)})
}

func (h *ReservationHandler) reservationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservation)
		return "", false
	}
	return id, true
}

type createReservationRequest struct {
	Subject     string `json:"subject"`
	Venue       string `json:"venue"`
	ScheduledAt string `json:"scheduled_at"`
	PartySize   int    `json:"party_size"`
}

func (r createReservationRequest) toParams() (application.CreateReservationParams, map[string]string) {
	params := application.CreateReservationParams{
		Subject:   strings.TrimSpace(r.Subject),
		Venue:     strings.TrimSpace(r.Venue),
		PartySize: r.PartySize,
	}
	if raw := strings.TrimSpace(r.ScheduledAt); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return params, map[string]string{"scheduled_at": "予約日時は RFC 3339 形式で指定してください。"}
		}
		params.ScheduledAt = at
	}
	return params, nil
}

type cancelReservationRequest struct {
	Reason string `json:"reason"`
}

type reservationResponse struct {
	Reservation reservationDTO `json:"reservation"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type reservationDTO struct {
	ID                 string      `json:"id"`
	Subject            string      `json:"subject"`
	Venue              string      `json:"venue"`
	ScheduledAt        string      `json:"scheduled_at"`
	PartySize          int         `json:"party_size"`
	TotalPrice         string      `json:"total_price"`
	Status             string      `json:"status"`
	CanConfirm         bool        `json:"can_confirm"`
	CanCancel          bool        `json:"can_cancel"`
	CanComplete        bool        `json:"can_complete"`
	CreatedAt          string      `json:"created_at"`
	UpdatedAt          string      `json:"updated_at"`
	ConfirmedAt        *string     `json:"confirmed_at,omitempty"`
	CancelledAt        *string     `json:"cancelled_at,omitempty"`
	CompletedAt        *string     `json:"completed_at,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	PaymentID          string      `json:"payment_id,omitempty"`
	RefundID           string      `json:"refund_id,omitempty"`
	Snapshot           snapshotDTO `json:"venue_snapshot"`
}

type snapshotDTO struct {
	Hours      string `json:"hours,omitempty"`
	Address    string `json:"address,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Source     string `json:"source"`
	CapturedAt string `json:"captured_at"`
	Digest     string `json:"digest"`
	Verified   bool   `json:"verified"`
}

func toReservationDTO(tx reservation.Transaction) reservationDTO {
	return reservationDTO{
		ID:                 tx.ID,
		Subject:            tx.Subject,
		Venue:              tx.Venue,
		ScheduledAt:        formatTime(tx.ScheduledAt),
		PartySize:          tx.PartySize,
		TotalPrice:         tx.TotalPrice.String(),
		Status:             string(tx.Status),
		CanConfirm:         tx.CanConfirm(),
		CanCancel:          tx.CanCancel(),
		CanComplete:        tx.CanComplete(),
		CreatedAt:          formatTime(tx.CreatedAt),
		UpdatedAt:          formatTime(tx.UpdatedAt),
		ConfirmedAt:        formatOptionalTime(tx.ConfirmedAt),
		CancelledAt:        formatOptionalTime(tx.CancelledAt),
		CompletedAt:        formatOptionalTime(tx.CompletedAt),
		CancellationReason: tx.CancellationReason,
		PaymentID:          tx.PaymentID,
		RefundID:           tx.RefundID,
		Snapshot: snapshotDTO{
			Hours:      tx.Snapshot.Hours,
			Address:    tx.Snapshot.Address,
			Phone:      tx.Snapshot.Phone,
			Source:     tx.Snapshot.Source,
			CapturedAt: formatTime(tx.Snapshot.CapturedAt),
			Digest:     tx.Snapshot.Digest,
			Verified:   tx.Snapshot.Verify(),
		},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
