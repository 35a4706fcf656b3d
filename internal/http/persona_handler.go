package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/persona"
)

type personaService interface {
	ListPersonas(ctx context.Context, category string) ([]persona.Persona, error)
	GetPersona(ctx context.Context, alias string) (persona.Persona, error)
	AssignPersona(ctx context.Context, params application.AssignPersonaParams) (persona.Assignment, error)
	ListAssignments(ctx context.Context, subjectID string) ([]persona.Assignment, error)
	RemoveAssignment(ctx context.Context, subjectID, alias string) error
}

type PersonaHandler struct {
	service   personaService
	responder responder
	logger    *slog.Logger
}

func NewPersonaHandler(service personaService, logger *slog.Logger) *PersonaHandler {
	base := orDefault(logger)
	return &PersonaHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *PersonaHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "PersonaHandler", operation, attrs...)
}

func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	category := r.URL.Query().Get("category")
	personas, err := h.service.ListPersonas(r.Context(), category)
	if err != nil {
		h.log(r.Context(), "List", "category", category).
			ErrorContext(r.Context(), "persona list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPersonasResponse{Personas: toPersonaDTOs(personas)})
}

func (h *PersonaHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	alias := r.PathValue("alias")
	p, err := h.service.GetPersona(r.Context(), alias)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, personaResponse{Persona: toPersonaDTO(p)})
}

func (h *PersonaHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	subjectID := strings.TrimSpace(r.PathValue("id"))
	if subjectID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSubjectID)
		return
	}

	assignments, err := h.service.ListAssignments(r.Context(), subjectID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAssignmentsResponse{
		SubjectID:   subjectID,
		Assignments: toAssignmentDTOs(assignments),
	})
}

func (h *PersonaHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	subjectID := strings.TrimSpace(r.PathValue("id"))
	if subjectID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSubjectID)
		return
	}

	var req assignPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Assign", "subject_id", subjectID, "error_kind", "bad_request").
			ErrorContext(r.Context(), "failed to decode assignment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Assign", "subject_id", subjectID, "alias", req.Alias)

	assignment, err := h.service.AssignPersona(r.Context(), application.AssignPersonaParams{
		SubjectID: subjectID,
		Alias:     strings.TrimSpace(req.Alias),
		Weight:    persona.Weight(req.Weight),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "persona assignment failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "persona assigned")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, assignmentResponse{Assignment: toAssignmentDTO(assignment)})
}

func (h *PersonaHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	subjectID := strings.TrimSpace(r.PathValue("id"))
	alias := strings.TrimSpace(r.PathValue("alias"))
	if subjectID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSubjectID)
		return
	}

	if err := h.service.RemoveAssignment(r.Context(), subjectID, alias); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type assignPersonaRequest struct {
	Alias  string `json:"alias"`
	Weight int    `json:"weight"`
}

type personaResponse struct {
	Persona personaDTO `json:"persona"`
}

type listPersonasResponse struct {
	Personas []personaDTO `json:"personas"`
}

type assignmentResponse struct {
	Assignment assignmentDTO `json:"assignment"`
}

type listAssignmentsResponse struct {
	SubjectID   string          `json:"subject_id"`
	Assignments []assignmentDTO `json:"assignments"`
}

type personaDTO struct {
	Alias    string            `json:"alias"`
	Category string            `json:"category"`
	Bio      map[string]string `json:"bio,omitempty"`
	Empathy  map[string]string `json:"empathy,omitempty"`
}

type assignmentDTO struct {
	SubjectID  string `json:"subject_id"`
	Alias      string `json:"alias"`
	Category   string `json:"category"`
	Weight     int    `json:"weight"`
	SelectedAt string `json:"selected_at"`
}

func toPersonaDTO(p persona.Persona) personaDTO {
	return personaDTO{
		Alias:    p.Alias,
		Category: string(p.Category),
		Bio:      p.Bio,
		Empathy:  p.Empathy,
	}
}

func toPersonaDTOs(personas []persona.Persona) []personaDTO {
	out := make([]personaDTO, 0, len(personas))
	for _, p := range personas {
		out = append(out, toPersonaDTO(p))
	}
	return out
}

func toAssignmentDTO(a persona.Assignment) assignmentDTO {
	return assignmentDTO{
		SubjectID:  a.SubjectID,
		Alias:      a.Alias,
		Category:   string(a.Category),
		Weight:     int(a.Weight),
		SelectedAt: a.SelectedAt.UTC().Format(time.RFC3339),
	}
}

func toAssignmentDTOs(assignments []persona.Assignment) []assignmentDTO {
	out := make([]assignmentDTO, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, toAssignmentDTO(a))
	}
	return out
}
