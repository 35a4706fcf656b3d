package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/persona"
)

type scoreService interface {
	TeamScore(ctx context.Context, subjectIDs []string) (persona.TeamBreakdown, error)
	MatchScore(ctx context.Context, subjectA, subjectB string) (persona.MatchBreakdown, error)
	RankMatches(ctx context.Context, subjectID string, candidates []string, limit int) ([]application.RankedMatch, error)
}

type ScoreHandler struct {
	service   scoreService
	responder responder
	logger    *slog.Logger
}

func NewScoreHandler(service scoreService, logger *slog.Logger) *ScoreHandler {
	base := orDefault(logger)
	return &ScoreHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ScoreHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return scopedLogger(ctx, h.logger, "ScoreHandler", operation, attrs...)
}

func (h *ScoreHandler) Team(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req teamScoreRequest
	if !h.decode(w, r, "Team", &req) {
		return
	}

	breakdown, err := h.service.TeamScore(r.Context(), req.SubjectIDs)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, teamScoreResponse{
		Score:      breakdown.Score,
		Diversity:  breakdown.Diversity,
		Similarity: breakdown.Similarity,
	})
}

func (h *ScoreHandler) Match(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req matchScoreRequest
	if !h.decode(w, r, "Match", &req) {
		return
	}

	breakdown, err := h.service.MatchScore(r.Context(), req.SubjectA, req.SubjectB)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMatchScoreDTO(breakdown))
}

func (h *ScoreHandler) Rank(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req rankRequest
	if !h.decode(w, r, "Rank", &req) {
		return
	}

	logger := h.log(r.Context(), "Rank", "subject_id", req.SubjectID, "candidate_count", len(req.Candidates))
	ranked, err := h.service.RankMatches(r.Context(), req.SubjectID, req.Candidates, req.Limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "ranking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := rankResponse{SubjectID: req.SubjectID, Matches: make([]rankedMatchDTO, 0, len(ranked))}
	for _, m := range ranked {
		out.Matches = append(out.Matches, rankedMatchDTO{SubjectID: m.SubjectID, matchScoreDTO: toMatchScoreDTO(m.Breakdown)})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *ScoreHandler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").
			ErrorContext(r.Context(), "failed to decode score request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

type teamScoreRequest struct {
	SubjectIDs []string `json:"subject_ids"`
}

type matchScoreRequest struct {
	SubjectA string `json:"subject_a"`
	SubjectB string `json:"subject_b"`
}

type rankRequest struct {
	SubjectID  string   `json:"subject_id"`
	Candidates []string `json:"candidates"`
	Limit      int      `json:"limit"`
}

type teamScoreResponse struct {
	Score      float64 `json:"score"`
	Diversity  float64 `json:"diversity"`
	Similarity float64 `json:"similarity"`
}

type matchScoreDTO struct {
	Score             float64 `json:"score"`
	Social            float64 `json:"social"`
	Achievement       float64 `json:"achievement"`
	FantasyComplement float64 `json:"fantasy_complement"`
}

type rankedMatchDTO struct {
	SubjectID string `json:"subject_id"`
	matchScoreDTO
}

type rankResponse struct {
	SubjectID string           `json:"subject_id"`
	Matches   []rankedMatchDTO `json:"matches"`
}

func toMatchScoreDTO(b persona.MatchBreakdown) matchScoreDTO {
	return matchScoreDTO{
		Score:             b.Score,
		Social:            b.Social,
		Achievement:       b.Achievement,
		FantasyComplement: b.FantasyComplement,
	}
}
