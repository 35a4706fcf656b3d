package application

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/example/matchbook/internal/persistence"
	"github.com/example/matchbook/internal/persona"
	"github.com/example/matchbook/internal/reservation"
)

type personaRepoStub struct {
	mu       sync.Mutex
	byAlias  map[string]persona.Persona
	getCalls int
	listErr  error
	getErr   error
}

func newPersonaRepoStub(t *testing.T) *personaRepoStub {
	t.Helper()
	catalog, err := persona.DefaultCatalog()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	repo := &personaRepoStub{byAlias: make(map[string]persona.Persona, len(catalog))}
	for _, p := range catalog {
		repo.byAlias[p.Alias] = p
	}
	return repo
}

func (r *personaRepoStub) UpsertPersona(ctx context.Context, p persona.Persona) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byAlias == nil {
		r.byAlias = make(map[string]persona.Persona)
	}
	if existing, ok := r.byAlias[p.Alias]; ok && existing.Category != p.Category {
		return persistence.ErrConflict
	}
	r.byAlias[p.Alias] = p.Clone()
	return nil
}

func (r *personaRepoStub) GetPersona(ctx context.Context, alias string) (persona.Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.getErr != nil {
		return persona.Persona{}, r.getErr
	}
	p, ok := r.byAlias[alias]
	if !ok {
		return persona.Persona{}, persistence.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *personaRepoStub) ListPersonas(ctx context.Context, category persona.Category) ([]persona.Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []persona.Persona
	for _, p := range r.byAlias {
		if category == "" || p.Category == category {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func (r *personaRepoStub) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getCalls
}

type assignmentRepoStub struct {
	mu        sync.Mutex
	bySubject map[string][]persona.Assignment
	listErr   error
	createErr error
}

func newAssignmentRepoStub() *assignmentRepoStub {
	return &assignmentRepoStub{bySubject: make(map[string][]persona.Assignment)}
}

// seed stores assignments without running the assignment rules.
func (r *assignmentRepoStub) seed(subjectID string, assignments ...persona.Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assignments {
		a.SubjectID = subjectID
		r.bySubject[subjectID] = append(r.bySubject[subjectID], a)
	}
}

func (r *assignmentRepoStub) CreateAssignment(ctx context.Context, a persona.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.bySubject[a.SubjectID] {
		if existing.Alias == a.Alias {
			return persistence.ErrDuplicate
		}
	}
	r.bySubject[a.SubjectID] = append(r.bySubject[a.SubjectID], a)
	return nil
}

func (r *assignmentRepoStub) ListAssignments(ctx context.Context, subjectID string) ([]persona.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	list := r.bySubject[subjectID]
	if len(list) == 0 {
		return nil, nil
	}
	return append([]persona.Assignment(nil), list...), nil
}

func (r *assignmentRepoStub) ListAssignmentsForSubjects(ctx context.Context, subjectIDs []string) (map[string][]persona.Assignment, error) {
	out := make(map[string][]persona.Assignment, len(subjectIDs))
	for _, id := range subjectIDs {
		list, err := r.ListAssignments(ctx, id)
		if err != nil {
			return nil, err
		}
		if list != nil {
			out[id] = list
		}
	}
	return out, nil
}

func (r *assignmentRepoStub) DeleteAssignment(ctx context.Context, subjectID, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.bySubject[subjectID]
	for i, a := range list {
		if a.Alias == alias {
			r.bySubject[subjectID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

type reservationRepoStub struct {
	mu        sync.Mutex
	byID      map[string]reservation.Transaction
	updates   int
	updateErr error
}

func newReservationRepoStub() *reservationRepoStub {
	return &reservationRepoStub{byID: make(map[string]reservation.Transaction)}
}

func (r *reservationRepoStub) CreateReservation(ctx context.Context, tx reservation.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[tx.ID]; ok {
		return persistence.ErrDuplicate
	}
	r.byID[tx.ID] = *tx.Clone()
	return nil
}

func (r *reservationRepoStub) GetReservation(ctx context.Context, id string) (reservation.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return reservation.Transaction{}, persistence.ErrNotFound
	}
	return *tx.Clone(), nil
}

func (r *reservationRepoStub) ListReservations(ctx context.Context, filter ReservationFilter) ([]reservation.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reservation.Transaction
	for _, tx := range r.byID {
		if filter.Subject != "" && tx.Subject != filter.Subject {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		out = append(out, *tx.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *reservationRepoStub) UpdateReservation(ctx context.Context, tx reservation.Transaction, expected reservation.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.byID[tx.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.Status != expected {
		return persistence.ErrConflict
	}
	r.byID[tx.ID] = *tx.Clone()
	r.updates++
	return nil
}

func (r *reservationRepoStub) stored(id string) reservation.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.byID[id]
	return *tx.Clone()
}

type panickingPayments struct{}

func (panickingPayments) Charge(reservation.Transaction) (string, error) {
	panic("processor crashed")
}

func (panickingPayments) Refund(reservation.Transaction) (string, error) {
	panic("processor crashed")
}
