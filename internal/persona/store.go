package persona

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/fault"
)

// Store is the durable persona catalog.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create adds a persona to the catalog.
func (s *Store) Create(ctx context.Context, p Persona) (*Persona, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: persona name is required", fault.ErrValidation)
	}
	if err := validateTriggers(p.Triggers); err != nil {
		return nil, err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Tone == "" {
		p.Tone = "professional"
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Triggers == nil {
		p.Triggers = []Trigger{}
	}

	triggers, err := json.Marshal(p.Triggers)
	if err != nil {
		return nil, fmt.Errorf("marshalling triggers: %w", err)
	}

	dynamic := 0
	if p.Dynamic {
		dynamic = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (id, name, description, tone, system_prompt, dynamic, triggers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Tone, p.SystemPrompt, dynamic, string(triggers),
		now.Format(time.DateTime), now.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting persona: %w", err)
	}
	return &p, nil
}

// Get retrieves a persona by id.
func (s *Store) Get(ctx context.Context, id string) (*Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, tone, system_prompt, dynamic, triggers, created_at, updated_at
		FROM personas WHERE id = ?`, id)

	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona %s: %w", id, fault.ErrNotFound)
	}
	return p, err
}

// List returns all personas ordered by name.
func (s *Store) List(ctx context.Context) ([]Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, tone, system_prompt, dynamic, triggers, created_at, updated_at
		FROM personas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying personas: %w", err)
	}
	defer rows.Close()

	var personas []Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, *p)
	}
	return personas, rows.Err()
}

// Update replaces the mutable fields of a persona.
func (s *Store) Update(ctx context.Context, id string, p Persona) (*Persona, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: persona name is required", fault.ErrValidation)
	}
	if err := validateTriggers(p.Triggers); err != nil {
		return nil, err
	}
	if p.Triggers == nil {
		p.Triggers = []Trigger{}
	}

	triggers, err := json.Marshal(p.Triggers)
	if err != nil {
		return nil, fmt.Errorf("marshalling triggers: %w", err)
	}

	dynamic := 0
	if p.Dynamic {
		dynamic = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE personas SET name = ?, description = ?, tone = ?, system_prompt = ?,
			dynamic = ?, triggers = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Tone, p.SystemPrompt, dynamic, string(triggers),
		time.Now().UTC().Format(time.DateTime), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating persona: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("persona %s: %w", id, fault.ErrNotFound)
	}
	return s.Get(ctx, id)
}

func validateTriggers(triggers []Trigger) error {
	for _, t := range triggers {
		if t.Intent == "" && len(t.Patterns) == 0 {
			return fmt.Errorf("%w: trigger needs an intent or at least one pattern", fault.ErrValidation)
		}
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPersona(sc scanner) (*Persona, error) {
	var (
		p            Persona
		dynamic      int
		triggersJSON string
		created      string
		updated      string
	)
	err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.Tone, &p.SystemPrompt,
		&dynamic, &triggersJSON, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Dynamic = dynamic != 0
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(triggersJSON), &p.Triggers); err != nil {
		p.Triggers = nil
	}
	return &p, nil
}

func parseTime(ts string) time.Time {
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Time{}
}
