package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/matchbook/internal/venue"
)

type venueLister interface {
	List() []venue.Venue
}

type VenueHandler struct {
	venues    venueLister
	responder responder
}

func NewVenueHandler(venues venueLister, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{venues: venues, responder: newResponder(logger)}
}

func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.venues == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	list := h.venues.List()
	out := listVenuesResponse{Venues: make([]venueDTO, 0, len(list))}
	for _, v := range list {
		out.Venues = append(out.Venues, venueDTO{
			Name:    v.Name,
			Rate:    v.Rate.String(),
			Hours:   v.Hours,
			Address: v.Address,
			Phone:   v.Phone,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

type listVenuesResponse struct {
	Venues []venueDTO `json:"venues"`
}

type venueDTO struct {
	Name    string `json:"name"`
	Rate    string `json:"rate"`
	Hours   string `json:"hours,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks    map[string]Pinger
	responder responder
}

// NewHealthHandler reports healthy only when every named check pings.
func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, responder: newResponder(logger)}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	out := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check.Ping(r.Context()); err != nil {
			h.responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "check", name, "error", err)
			out.Checks[name] = "unavailable"
			out.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[name] = "ok"
	}
	h.responder.writeJSON(r.Context(), w, status, out)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
