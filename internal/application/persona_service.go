package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/matchbook/internal/locking"
	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/persona"
)

const defaultRankConcurrency = 8

// PersonaServiceOptions tunes optional PersonaService behaviour. Zero values
// select defaults.
type PersonaServiceOptions struct {
	CacheSize       int
	CacheTTL        time.Duration
	RankConcurrency int
	Locker          Locker
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// PersonaService manages the persona catalog, subject assignments and
// compatibility scoring.
type PersonaService struct {
	personas    PersonaRepository
	assignments AssignmentRepository
	now         func() time.Time
	cache       *catalogCache
	locker      Locker
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewPersonaService constructs a persona service with default options.
func NewPersonaService(personas PersonaRepository, assignments AssignmentRepository, now func() time.Time) *PersonaService {
	return NewPersonaServiceWithOptions(personas, assignments, now, PersonaServiceOptions{})
}

// NewPersonaServiceWithOptions constructs a persona service.
func NewPersonaServiceWithOptions(personas PersonaRepository, assignments AssignmentRepository, now func() time.Time, opts PersonaServiceOptions) *PersonaService {
	if now == nil {
		now = time.Now
	}
	if opts.Locker == nil {
		opts.Locker = locking.NewKeyedMutex()
	}
	if opts.RankConcurrency <= 0 {
		opts.RankConcurrency = defaultRankConcurrency
	}
	return &PersonaService{
		personas:    personas,
		assignments: assignments,
		now:         now,
		cache:       newCatalogCache(opts.CacheSize, opts.CacheTTL, opts.Metrics),
		locker:      opts.Locker,
		concurrency: opts.RankConcurrency,
		metrics:     opts.Metrics,
		logger:      defaultLogger(opts.Logger),
	}
}

func (s *PersonaService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PersonaService", operation, attrs...)
}

// ListPersonas returns the catalog, optionally restricted to one category.
func (s *PersonaService) ListPersonas(ctx context.Context, category string) (personas []persona.Persona, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}

	var cat persona.Category
	if strings.TrimSpace(category) != "" {
		parsed, ok := persona.ParseCategory(category)
		if !ok {
			err = newValidationError("category", "category must be one of student, social, achievement, fantasy")
			return
		}
		cat = parsed
	}

	if cached, ok := s.cache.list(cat); ok {
		return cached, nil
	}

	logger := s.loggerWith(ctx, "ListPersonas", "category", string(cat))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list personas", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(personas)).DebugContext(ctx, "personas listed")
	}()

	if s.personas == nil {
		return nil, nil
	}
	personas, err = s.personas.ListPersonas(ctx, cat)
	if err != nil {
		err = mapPersonaRepoError(err)
		return
	}
	s.cache.storeList(cat, personas)
	return
}

// GetPersona returns a single catalog entry.
func (s *PersonaService) GetPersona(ctx context.Context, alias string) (p persona.Persona, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		err = newValidationError("alias", "alias is required")
		return
	}
	if cached, ok := s.cache.persona(alias); ok {
		return cached, nil
	}
	if s.personas == nil {
		err = ErrNotFound
		return
	}

	p, err = s.personas.GetPersona(ctx, alias)
	if err != nil {
		err = mapPersonaRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			s.loggerWith(ctx, "GetPersona", "alias", alias).
				ErrorContext(ctx, "failed to get persona", "error", err, "error_kind", ErrorKind(err))
		}
		return
	}
	s.cache.storePersona(p)
	return
}

// AssignPersona links a catalog persona to a subject after checking the
// weight and social assignment rules against the subject's current set.
func (s *PersonaService) AssignPersona(ctx context.Context, params AssignPersonaParams) (assignment persona.Assignment, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}
	if s.assignments == nil {
		err = fmt.Errorf("assignment repository not configured")
		return
	}

	subjectID := strings.TrimSpace(params.SubjectID)
	alias := strings.TrimSpace(params.Alias)

	logger := s.loggerWith(ctx, "AssignPersona",
		"subject_id", subjectID,
		"alias", alias,
		"weight", int(params.Weight),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to assign persona", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("category", string(assignment.Category)).InfoContext(ctx, "persona assigned")
	}()

	vErr := &ValidationError{}
	if subjectID == "" {
		vErr.add("subject_id", "subject id is required")
	}
	if alias == "" {
		vErr.add("alias", "alias is required")
	}
	if !params.Weight.Valid() {
		vErr.add("weight", "weight must be 1 (secondary) or 2 (primary)")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var p persona.Persona
	p, err = s.GetPersona(ctx, alias)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = newValidationError("alias", "unknown persona")
		}
		return
	}

	var unlock func()
	unlock, err = s.locker.Lock(ctx, "subject:"+subjectID)
	if err != nil {
		return
	}
	defer unlock()

	var existing []persona.Assignment
	existing, err = s.assignments.ListAssignments(ctx, subjectID)
	if err != nil {
		err = mapPersonaRepoError(err)
		return
	}

	candidate := persona.Assignment{
		SubjectID:  subjectID,
		Alias:      p.Alias,
		Category:   p.Category,
		Weight:     params.Weight,
		SelectedAt: s.now(),
	}
	if err = persona.ValidateAssignment(existing, candidate, p); err != nil {
		err = mapAssignmentRuleError(err)
		return
	}

	if err = s.assignments.CreateAssignment(ctx, candidate); err != nil {
		err = mapPersonaRepoError(err)
		return
	}
	assignment = candidate
	return
}

// ListAssignments returns the personas assigned to a subject.
func (s *PersonaService) ListAssignments(ctx context.Context, subjectID string) ([]persona.Assignment, error) {
	if s == nil {
		return nil, fmt.Errorf("PersonaService is nil")
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, newValidationError("subject_id", "subject id is required")
	}
	if s.assignments == nil {
		return nil, nil
	}
	assignments, err := s.assignments.ListAssignments(ctx, subjectID)
	if err != nil {
		err = mapPersonaRepoError(err)
		s.loggerWith(ctx, "ListAssignments", "subject_id", subjectID).
			ErrorContext(ctx, "failed to list assignments", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return assignments, nil
}

// RemoveAssignment deletes one of a subject's assignments.
func (s *PersonaService) RemoveAssignment(ctx context.Context, subjectID, alias string) error {
	if s == nil {
		return fmt.Errorf("PersonaService is nil")
	}
	if s.assignments == nil {
		return fmt.Errorf("assignment repository not configured")
	}
	subjectID = strings.TrimSpace(subjectID)
	alias = strings.TrimSpace(alias)

	logger := s.loggerWith(ctx, "RemoveAssignment", "subject_id", subjectID, "alias", alias)

	if err := s.assignments.DeleteAssignment(ctx, subjectID, alias); err != nil {
		err = mapPersonaRepoError(err)
		logger.ErrorContext(ctx, "failed to remove assignment", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "assignment removed")
	return nil
}

// TeamScore scores the given subjects as one team. Subjects without
// assignments count as members holding no personas.
func (s *PersonaService) TeamScore(ctx context.Context, subjectIDs []string) (breakdown persona.TeamBreakdown, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}

	ids := make([]string, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		err = newValidationError("subject_ids", "at least one subject id is required")
		return
	}

	var bySubject map[string][]persona.Assignment
	if s.assignments != nil {
		bySubject, err = s.assignments.ListAssignmentsForSubjects(ctx, uniqueStrings(ids))
		if err != nil {
			err = mapPersonaRepoError(err)
			s.loggerWith(ctx, "TeamScore", "team_size", len(ids)).
				ErrorContext(ctx, "failed to load team assignments", "error", err, "error_kind", ErrorKind(err))
			return
		}
	}

	members := make([][]persona.Assignment, len(ids))
	for i, id := range ids {
		members[i] = bySubject[id]
	}
	breakdown = persona.ScoreTeam(members)
	s.metrics.ScoreComputed("team")
	return
}

// MatchScore scores two subjects against each other.
func (s *PersonaService) MatchScore(ctx context.Context, subjectA, subjectB string) (breakdown persona.MatchBreakdown, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}
	subjectA, subjectB = strings.TrimSpace(subjectA), strings.TrimSpace(subjectB)
	vErr := &ValidationError{}
	if subjectA == "" {
		vErr.add("subject_a", "subject id is required")
	}
	if subjectB == "" {
		vErr.add("subject_b", "subject id is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var bySubject map[string][]persona.Assignment
	if s.assignments != nil {
		bySubject, err = s.assignments.ListAssignmentsForSubjects(ctx, uniqueStrings([]string{subjectA, subjectB}))
		if err != nil {
			err = mapPersonaRepoError(err)
			s.loggerWith(ctx, "MatchScore", "subject_a", subjectA, "subject_b", subjectB).
				ErrorContext(ctx, "failed to load assignments", "error", err, "error_kind", ErrorKind(err))
			return
		}
	}

	breakdown = persona.ScoreMatch(bySubject[subjectA], bySubject[subjectB])
	s.metrics.ScoreComputed("match")
	return
}

// RankMatches scores every candidate against subjectID concurrently and
// returns the best matches first. Ties are broken by subject id. A limit of
// zero or less returns every candidate.
func (s *PersonaService) RankMatches(ctx context.Context, subjectID string, candidates []string, limit int) (ranked []RankedMatch, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		err = newValidationError("subject_id", "subject id is required")
		return
	}

	var ids []string
	for _, id := range candidates {
		if id = strings.TrimSpace(id); id != "" && id != subjectID {
			ids = append(ids, id)
		}
	}
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		err = newValidationError("candidates", "at least one candidate other than the subject is required")
		return
	}

	logger := s.loggerWith(ctx, "RankMatches", "subject_id", subjectID, "candidate_count", len(ids))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to rank matches", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(ranked)).InfoContext(ctx, "matches ranked")
	}()

	if s.assignments == nil {
		err = fmt.Errorf("assignment repository not configured")
		return
	}

	var own []persona.Assignment
	own, err = s.assignments.ListAssignments(ctx, subjectID)
	if err != nil {
		err = mapPersonaRepoError(err)
		return
	}

	results := make([]RankedMatch, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			theirs, err := s.assignments.ListAssignments(gctx, id)
			if err != nil {
				return fmt.Errorf("load assignments for %s: %w", id, mapPersonaRepoError(err))
			}
			results[i] = RankedMatch{SubjectID: id, Breakdown: persona.ScoreMatch(own, theirs)}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Breakdown.Score != results[j].Breakdown.Score {
			return results[i].Breakdown.Score > results[j].Breakdown.Score
		}
		return results[i].SubjectID < results[j].SubjectID
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	ranked = results
	s.metrics.ScoreComputed("rank")
	return
}

// SeedCatalog upserts reference personas and returns how many were written.
// Running it again with the same catalog is harmless. A persona already
// stored under a different category is rejected with ErrAlreadyExists.
func (s *PersonaService) SeedCatalog(ctx context.Context, personas []persona.Persona) (count int, err error) {
	if s == nil {
		err = fmt.Errorf("PersonaService is nil")
		return
	}
	if s.personas == nil {
		err = fmt.Errorf("persona repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SeedCatalog", "persona_count", len(personas))
	defer func() {
		s.cache.purge()
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed catalog", "error", err, "error_kind", ErrorKind(err), "seeded", count)
			return
		}
		logger.With("seeded", count).InfoContext(ctx, "catalog seeded")
	}()

	for _, p := range personas {
		if strings.TrimSpace(p.Alias) == "" || !p.Category.Valid() {
			err = newValidationError("personas", fmt.Sprintf("invalid persona %q", p.Alias))
			return
		}
		if err = s.personas.UpsertPersona(ctx, p); err != nil {
			if errors.Is(err, persistence.ErrConflict) {
				err = fmt.Errorf("%w: persona %s is already catalogued under another category", ErrAlreadyExists, p.Alias)
				return
			}
			err = mapPersonaRepoError(err)
			return
		}
		count++
	}
	return
}

func mapAssignmentRuleError(err error) error {
	switch {
	case errors.Is(err, persona.ErrDuplicateAlias):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, persona.ErrInvalidWeight):
		return newValidationError("weight", "weight must be 1 (secondary) or 2 (primary)")
	case errors.Is(err, persona.ErrSocialWeights):
		return newValidationError("weight", "social personas need one primary and one secondary")
	case errors.Is(err, persona.ErrSocialLimit):
		return newValidationError("alias", fmt.Sprintf("at most %d social personas may be assigned", persona.MaxSocialAssignments))
	case errors.Is(err, persona.ErrCategoryMismatch):
		return newValidationError("alias", "persona category does not match")
	}
	return err
}

func mapPersonaRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("alias", "assignment violates catalog constraints")
	}
	return err
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
