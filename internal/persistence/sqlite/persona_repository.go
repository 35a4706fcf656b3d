package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/matchbook/internal/persistence"
)

// PersonaRepository implements persistence.PersonaRepository and
// persistence.AssignmentRepository using SQLite.
type PersonaRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewPersonaRepository creates a new SQLite persona repository.
func NewPersonaRepository(pool *ConnectionPool) *PersonaRepository {
	return &PersonaRepository{pool: pool, mapper: NewErrorMapper(), now: time.Now}
}

// UpsertPersona inserts a persona or refreshes the descriptive fields of the
// stored copy with the same alias. Changing the category of a stored persona
// fails with persistence.ErrConflict.
func (r *PersonaRepository) UpsertPersona(ctx context.Context, persona persistence.Persona) error {
	if strings.TrimSpace(persona.Alias) == "" || persona.Category == "" {
		return persistence.ErrConstraintViolation
	}

	bio, err := encodeAttributes(persona.Bio)
	if err != nil {
		return err
	}
	empathy, err := encodeAttributes(persona.Empathy)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	if persona.CreatedAt.IsZero() {
		persona.CreatedAt = now
	}

	// Category is fixed once stored; assignments read it through a join.
	const query = `
		INSERT INTO personas (alias, category, bio, empathy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET
			bio = excluded.bio,
			empathy = excluded.empathy,
			updated_at = excluded.updated_at
		WHERE personas.category = excluded.category
	`
	result, err := r.pool.DB().ExecContext(ctx, query,
		persona.Alias,
		persona.Category,
		bio,
		empathy,
		formatTime(persona.CreatedAt),
		formatTime(now),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: persona %s cannot move to category %s", persistence.ErrConflict, persona.Alias, persona.Category)
	}
	return nil
}

// GetPersona retrieves a persona by alias.
func (r *PersonaRepository) GetPersona(ctx context.Context, alias string) (persistence.Persona, error) {
	if alias == "" {
		return persistence.Persona{}, persistence.ErrNotFound
	}

	const query = `
		SELECT alias, category, bio, empathy, created_at, updated_at
		FROM personas
		WHERE alias = ?
	`
	persona, err := scanPersona(r.pool.DB().QueryRowContext(ctx, query, alias))
	if err != nil {
		return persistence.Persona{}, r.mapper.MapError(err)
	}
	return persona, nil
}

// ListPersonas returns personas ordered by category then alias. An empty
// category lists the whole catalog.
func (r *PersonaRepository) ListPersonas(ctx context.Context, category string) ([]persistence.Persona, error) {
	query := `
		SELECT alias, category, bio, empathy, created_at, updated_at
		FROM personas
	`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, alias ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var personas []persistence.Persona
	for rows.Next() {
		persona, err := scanPersona(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		personas = append(personas, persona)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return personas, nil
}

// CreateAssignment stores a new assignment. Assigning the same alias twice to
// a subject yields persistence.ErrDuplicate; an unknown alias yields
// persistence.ErrConstraintViolation.
func (r *PersonaRepository) CreateAssignment(ctx context.Context, assignment persistence.Assignment) error {
	if assignment.ID == "" || assignment.SubjectID == "" || assignment.Alias == "" {
		return persistence.ErrConstraintViolation
	}
	if assignment.SelectedAt.IsZero() {
		assignment.SelectedAt = r.now()
	}

	const query = `
		INSERT INTO persona_assignments (id, subject_id, alias, weight, selected_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.pool.DB().ExecContext(ctx, query,
		assignment.ID,
		assignment.SubjectID,
		assignment.Alias,
		assignment.Weight,
		formatTime(assignment.SelectedAt),
	)
	return r.mapper.MapError(err)
}

const assignmentColumns = `
	SELECT a.id, a.subject_id, a.alias, p.category, a.weight, a.selected_at
	FROM persona_assignments a
	JOIN personas p ON p.alias = a.alias
`

// ListAssignments returns a subject's assignments in selection order.
func (r *PersonaRepository) ListAssignments(ctx context.Context, subjectID string) ([]persistence.Assignment, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		assignmentColumns+` WHERE a.subject_id = ? ORDER BY a.selected_at ASC, a.alias ASC`,
		subjectID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	assignments, err := scanAssignments(rows)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return assignments, nil
}

// ListAssignmentsForSubjects loads the assignments of several subjects in one
// query. Subjects without assignments are present with a nil slice.
func (r *PersonaRepository) ListAssignmentsForSubjects(ctx context.Context, subjectIDs []string) (map[string][]persistence.Assignment, error) {
	result := make(map[string][]persistence.Assignment, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(subjectIDs))
	args := make([]any, len(subjectIDs))
	for i, id := range subjectIDs {
		placeholders[i] = "?"
		args[i] = id
		result[id] = nil
	}

	query := fmt.Sprintf(`%s WHERE a.subject_id IN (%s) ORDER BY a.subject_id ASC, a.selected_at ASC, a.alias ASC`,
		assignmentColumns, strings.Join(placeholders, ", "))
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	assignments, err := scanAssignments(rows)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	for _, a := range assignments {
		result[a.SubjectID] = append(result[a.SubjectID], a)
	}
	return result, nil
}

// DeleteAssignment removes an assignment.
func (r *PersonaRepository) DeleteAssignment(ctx context.Context, subjectID, alias string) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM persona_assignments WHERE subject_id = ? AND alias = ?`,
		subjectID, alias,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row rowScanner) (persistence.Persona, error) {
	var (
		persona              persistence.Persona
		bio, empathy         string
		createdAt, updatedAt string
	)
	if err := row.Scan(&persona.Alias, &persona.Category, &bio, &empathy, &createdAt, &updatedAt); err != nil {
		return persistence.Persona{}, err
	}

	var err error
	if persona.Bio, err = decodeAttributes("bio", bio); err != nil {
		return persistence.Persona{}, err
	}
	if persona.Empathy, err = decodeAttributes("empathy", empathy); err != nil {
		return persistence.Persona{}, err
	}
	if persona.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Persona{}, err
	}
	if persona.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Persona{}, err
	}
	return persona, nil
}

func scanAssignments(rows *sql.Rows) ([]persistence.Assignment, error) {
	var assignments []persistence.Assignment
	for rows.Next() {
		var (
			a          persistence.Assignment
			selectedAt string
		)
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.Alias, &a.Category, &a.Weight, &selectedAt); err != nil {
			return nil, err
		}
		var err error
		if a.SelectedAt, err = parseTime("selected_at", selectedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(data), nil
}

func decodeAttributes(column, value string) (map[string]string, error) {
	attrs := map[string]string{}
	if value == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(value), &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", column, err)
	}
	return attrs, nil
}
