package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persona"
)

var fixedNow = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

func nowStub() time.Time { return fixedNow }

func assignment(alias string, category persona.Category, weight persona.Weight) persona.Assignment {
	return persona.Assignment{Alias: alias, Category: category, Weight: weight, SelectedAt: fixedNow}
}

func TestPersonaService_ListPersonas(t *testing.T) {
	t.Run("rejects unknown categories", func(t *testing.T) {
		svc := NewPersonaService(newPersonaRepoStub(t), nil, nowStub)

		_, err := svc.ListPersonas(context.Background(), "villain")

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["category"]; !ok {
			t.Fatalf("expected category validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("filters by category and caches listings", func(t *testing.T) {
		repo := newPersonaRepoStub(t)
		reg := prometheus.NewRegistry()
		svc := NewPersonaServiceWithOptions(repo, nil, nowStub, PersonaServiceOptions{Metrics: metrics.MustNew(reg)})

		first, err := svc.ListPersonas(context.Background(), "Fantasy")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(first) != 4 {
			t.Fatalf("expected 4 fantasy personas, got %d", len(first))
		}
		for _, p := range first {
			if p.Category != persona.CategoryFantasy {
				t.Fatalf("unexpected category %s for %s", p.Category, p.Alias)
			}
		}

		repo.listErr = errors.New("database gone")
		second, err := svc.ListPersonas(context.Background(), "fantasy")
		if err != nil {
			t.Fatalf("expected cached listing, got %v", err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("cached listing mismatch (-first +second):\n%s", diff)
		}

		if _, err := svc.GetPersona(context.Background(), "Dragon"); err != nil {
			t.Fatalf("expected listed persona to be cached, got %v", err)
		}
		if got := repo.calls(); got != 0 {
			t.Fatalf("expected no repository lookups, got %d", got)
		}

		if got := testutil.CollectAndCount(reg, "matchbook_persona_cache_lookups_total"); got != 2 {
			t.Fatalf("expected hit and miss series, got %d", got)
		}
	})
}

func TestPersonaService_GetPersona(t *testing.T) {
	repo := newPersonaRepoStub(t)
	svc := NewPersonaService(repo, nil, nowStub)

	if _, err := svc.GetPersona(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error for blank alias")
	}

	if _, err := svc.GetPersona(context.Background(), "Nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := svc.GetPersona(context.Background(), "Scholar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Category != persona.CategoryStudent || p.Bio.About() == "" {
		t.Fatalf("unexpected persona %+v", p)
	}

	p.Bio["about"] = "mutated"
	again, err := svc.GetPersona(context.Background(), "Scholar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Bio.About() == "mutated" {
		t.Fatal("cached persona shares state with caller")
	}
	if got := repo.calls(); got != 2 {
		t.Fatalf("expected one miss plus one hit for Scholar, got %d repository calls", got)
	}
}

func TestPersonaService_AssignPersona(t *testing.T) {
	ctx := context.Background()

	t.Run("validates input", func(t *testing.T) {
		svc := NewPersonaService(newPersonaRepoStub(t), newAssignmentRepoStub(), nowStub)

		_, err := svc.AssignPersona(ctx, AssignPersonaParams{Weight: 3})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"subject_id", "alias", "weight"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("unknown alias is a validation error", func(t *testing.T) {
		svc := NewPersonaService(newPersonaRepoStub(t), newAssignmentRepoStub(), nowStub)

		_, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Nobody", Weight: persona.WeightPrimary})

		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["alias"] == "" {
			t.Fatalf("expected alias validation error, got %v", err)
		}
	})

	t.Run("stores the assignment with the catalog category", func(t *testing.T) {
		assignments := newAssignmentRepoStub()
		svc := NewPersonaService(newPersonaRepoStub(t), assignments, nowStub)

		got, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: " ada ", Alias: "Connector", Weight: persona.WeightPrimary})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := persona.Assignment{
			SubjectID:  "ada",
			Alias:      "Connector",
			Category:   persona.CategorySocial,
			Weight:     persona.WeightPrimary,
			SelectedAt: fixedNow,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("assignment mismatch (-want +got):\n%s", diff)
		}

		stored, err := svc.ListAssignments(ctx, "ada")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]persona.Assignment{want}, stored); diff != "" {
			t.Fatalf("stored assignments mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("enforces social rules", func(t *testing.T) {
		assignments := newAssignmentRepoStub()
		svc := NewPersonaService(newPersonaRepoStub(t), assignments, nowStub)

		if _, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Connector", Weight: persona.WeightPrimary}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Listener", Weight: persona.WeightPrimary})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["weight"] == "" {
			t.Fatalf("expected weight validation error for two primaries, got %v", err)
		}

		if _, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Listener", Weight: persona.WeightSecondary}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Mediator", Weight: persona.WeightSecondary})
		if !errors.As(err, &vErr) || vErr.FieldErrors["alias"] == "" {
			t.Fatalf("expected alias validation error for a third social persona, got %v", err)
		}

		_, err = svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Connector", Weight: persona.WeightSecondary})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}

		// Non-social personas are unaffected by the social limit.
		if _, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Dragon", Weight: persona.WeightPrimary}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("surfaces repository failures", func(t *testing.T) {
		assignments := newAssignmentRepoStub()
		assignments.createErr = errors.New("disk full")
		svc := NewPersonaService(newPersonaRepoStub(t), assignments, nowStub)

		_, err := svc.AssignPersona(ctx, AssignPersonaParams{SubjectID: "ada", Alias: "Scholar", Weight: persona.WeightPrimary})
		if err == nil || ErrorKind(err) != "unexpected" {
			t.Fatalf("expected unexpected error, got %v", err)
		}
	})
}

func TestPersonaService_RemoveAssignment(t *testing.T) {
	assignments := newAssignmentRepoStub()
	assignments.seed("ada", assignment("Scholar", persona.CategoryStudent, persona.WeightPrimary))
	svc := NewPersonaService(newPersonaRepoStub(t), assignments, nowStub)

	if err := svc.RemoveAssignment(context.Background(), "ada", "Scholar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RemoveAssignment(context.Background(), "ada", "Scholar"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPersonaService_TeamScore(t *testing.T) {
	assignments := newAssignmentRepoStub()
	assignments.seed("s1",
		assignment("Scholar", persona.CategoryStudent, persona.WeightPrimary),
		assignment("Completionist", persona.CategoryAchievement, persona.WeightPrimary))
	assignments.seed("s2",
		assignment("Scholar", persona.CategoryStudent, persona.WeightPrimary),
		assignment("Completionist", persona.CategoryAchievement, persona.WeightPrimary))
	assignments.seed("s3",
		assignment("Tinkerer", persona.CategoryStudent, persona.WeightPrimary),
		assignment("Completionist", persona.CategoryAchievement, persona.WeightSecondary))
	svc := NewPersonaService(nil, assignments, nowStub)

	t.Run("requires a subject", func(t *testing.T) {
		_, err := svc.TeamScore(context.Background(), []string{" ", ""})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["subject_ids"] == "" {
			t.Fatalf("expected subject_ids validation error, got %v", err)
		}
	})

	t.Run("scores diversity and shared achievements", func(t *testing.T) {
		got, err := svc.TeamScore(context.Background(), []string{"s1", "s2", "s3"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Score != 86.67 {
			t.Fatalf("expected 86.67, got %v (%+v)", got.Score, got)
		}
		if got.Similarity != 1 {
			t.Fatalf("expected full achievement similarity, got %v", got.Similarity)
		}
	})

	t.Run("single member scores zero", func(t *testing.T) {
		got, err := svc.TeamScore(context.Background(), []string{"s1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Score != 0 {
			t.Fatalf("expected 0, got %v", got.Score)
		}
	})

	t.Run("unknown subjects count as empty members", func(t *testing.T) {
		got, err := svc.TeamScore(context.Background(), []string{"s3", "ghost"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Score != 100 {
			t.Fatalf("expected 100, got %v", got.Score)
		}
	})
}

func TestPersonaService_MatchScore(t *testing.T) {
	assignments := newAssignmentRepoStub()
	assignments.seed("a",
		assignment("Connector", persona.CategorySocial, persona.WeightPrimary),
		assignment("Listener", persona.CategorySocial, persona.WeightSecondary),
		assignment("Dragon", persona.CategoryFantasy, persona.WeightPrimary))
	assignments.seed("b",
		assignment("Connector", persona.CategorySocial, persona.WeightPrimary),
		assignment("Wizard", persona.CategoryFantasy, persona.WeightSecondary))
	reg := prometheus.NewRegistry()
	svc := NewPersonaServiceWithOptions(nil, assignments, nowStub, PersonaServiceOptions{Metrics: metrics.MustNew(reg)})

	ab, err := svc.MatchScore(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := persona.MatchBreakdown{Social: 0.5, Achievement: 0, FantasyComplement: 1, Score: 55}
	if diff := cmp.Diff(want, ab); diff != "" {
		t.Fatalf("breakdown mismatch (-want +got):\n%s", diff)
	}

	ba, err := svc.MatchScore(context.Background(), "b", "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Fatalf("expected symmetric scores, got %+v and %+v", ab, ba)
	}

	if _, err := svc.MatchScore(context.Background(), "a", ""); err == nil {
		t.Fatal("expected validation error for blank subject")
	}

	if got := testutil.CollectAndCount(reg, "matchbook_persona_scores_total"); got != 1 {
		t.Fatalf("expected one score series, got %d", got)
	}
}

func TestPersonaService_RankMatches(t *testing.T) {
	assignments := newAssignmentRepoStub()
	assignments.seed("me",
		assignment("Connector", persona.CategorySocial, persona.WeightPrimary),
		assignment("Explorer", persona.CategoryAchievement, persona.WeightPrimary))
	assignments.seed("best",
		assignment("Connector", persona.CategorySocial, persona.WeightPrimary),
		assignment("Explorer", persona.CategoryAchievement, persona.WeightPrimary))
	assignments.seed("tie-b", assignment("Explorer", persona.CategoryAchievement, persona.WeightPrimary))
	assignments.seed("tie-a", assignment("Explorer", persona.CategoryAchievement, persona.WeightSecondary))
	assignments.seed("none", assignment("Scholar", persona.CategoryStudent, persona.WeightPrimary))
	svc := NewPersonaServiceWithOptions(nil, assignments, nowStub, PersonaServiceOptions{RankConcurrency: 2})

	t.Run("orders by score then subject", func(t *testing.T) {
		ranked, err := svc.RankMatches(context.Background(), "me", []string{"none", "tie-b", "me", "best", "tie-a", "tie-b", " "}, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var order []string
		for _, r := range ranked {
			order = append(order, r.SubjectID)
		}
		if diff := cmp.Diff([]string{"best", "tie-a", "tie-b", "none"}, order); diff != "" {
			t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
		}
		for i := 1; i < len(ranked); i++ {
			if ranked[i-1].Breakdown.Score < ranked[i].Breakdown.Score {
				t.Fatalf("ranking not descending: %+v", ranked)
			}
		}
	})

	t.Run("applies limit", func(t *testing.T) {
		ranked, err := svc.RankMatches(context.Background(), "me", []string{"none", "best", "tie-a"}, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ranked) != 1 || ranked[0].SubjectID != "best" {
			t.Fatalf("expected only best, got %+v", ranked)
		}
	})

	t.Run("requires candidates other than the subject", func(t *testing.T) {
		_, err := svc.RankMatches(context.Background(), "me", []string{"me", ""}, 0)
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["candidates"] == "" {
			t.Fatalf("expected candidates validation error, got %v", err)
		}
	})

	t.Run("propagates repository errors", func(t *testing.T) {
		failing := newAssignmentRepoStub()
		failing.listErr = errors.New("boom")
		svc := NewPersonaService(nil, failing, nowStub)
		if _, err := svc.RankMatches(context.Background(), "me", []string{"x"}, 0); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestPersonaService_SeedCatalog(t *testing.T) {
	repo := &personaRepoStub{}
	svc := NewPersonaService(repo, nil, nowStub)
	ctx := context.Background()

	before, err := svc.ListPersonas(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(before) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(before))
	}

	catalog, err := persona.DefaultCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	count, err := svc.SeedCatalog(ctx, catalog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != len(catalog) {
		t.Fatalf("expected %d seeded, got %d", len(catalog), count)
	}

	after, err := svc.ListPersonas(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != len(catalog) {
		t.Fatalf("expected seeding to invalidate the cache, got %d personas", len(after))
	}

	count, err = svc.SeedCatalog(ctx, catalog)
	if err != nil {
		t.Fatalf("reseeding the same catalog failed: %v", err)
	}
	if count != len(catalog) {
		t.Fatalf("expected %d reseeded, got %d", len(catalog), count)
	}

	_, err = svc.SeedCatalog(ctx, []persona.Persona{{Alias: "Bad", Category: "villain"}})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	moved := catalog[0].Clone()
	moved.Category = persona.CategoryFantasy
	if catalog[0].Category == persona.CategoryFantasy {
		moved.Category = persona.CategoryStudent
	}
	_, err = svc.SeedCatalog(ctx, []persona.Persona{moved})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for a recategorised persona, got %v", err)
	}
	stored, err := svc.GetPersona(ctx, moved.Alias)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Category != catalog[0].Category {
		t.Fatalf("expected category %s to be kept, got %s", catalog[0].Category, stored.Category)
	}
}
