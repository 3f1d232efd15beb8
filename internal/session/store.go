package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/fault"
)

// Store owns the durable record of conversation sessions: the session
// row, message history and persona switch history.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create starts a new session for the given lead with the given initial
// persona. safePersonas restricts which personas the router may switch
// to; an empty list means no restriction.
func (s *Store) Create(ctx context.Context, leadID, personaID string, safePersonas []string) (*Session, error) {
	if leadID == "" || personaID == "" {
		return nil, fmt.Errorf("%w: lead_id and persona_id are required", fault.ErrValidation)
	}

	safe, err := json.Marshal(safePersonas)
	if err != nil {
		return nil, fmt.Errorf("marshalling safe personas: %w", err)
	}

	sess := &Session{
		ID:               uuid.New().String(),
		LeadID:           leadID,
		InitialPersonaID: personaID,
		CurrentPersonaID: personaID,
		SafePersonas:     safePersonas,
		Status:           StatusActive,
		StartedAt:        time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, lead_id, initial_persona_id, current_persona_id, safe_personas, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.LeadID, sess.InitialPersonaID, sess.CurrentPersonaID,
		string(safe), string(sess.Status), sess.StartedAt.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, initial_persona_id, current_persona_id, safe_personas, status, started_at, ended_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, fault.ErrNotFound)
	}
	return sess, err
}

// ListFilter controls which sessions List returns.
type ListFilter struct {
	Status Status
	LeadID string
	Limit  int
	Offset int
}

// List returns sessions matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Session, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.LeadID != "" {
		clauses = append(clauses, "lead_id = ?")
		args = append(args, filter.LeadID)
	}

	query := "SELECT id, lead_id, initial_persona_id, current_persona_id, safe_personas, status, started_at, ended_at FROM sessions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// AppendMessage adds a message to an active session. Fails with NotFound
// if the session is absent and Conflict if it is no longer active.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg Message) (*Message, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, fault.ErrConflict)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.SafetyFlags == nil {
		msg.SafetyFlags = []string{}
	}

	flags, err := json.Marshal(msg.SafetyFlags)
	if err != nil {
		return nil, fmt.Errorf("marshalling safety flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, confidence, safety_flags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Confidence,
		string(flags), msg.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return &msg, nil
}

// Messages returns the ordered message history of a session.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, confidence, safety_flags, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LatestMessage returns the most recent message of a session, or nil if
// the session has no messages.
func (s *Store) LatestMessage(ctx context.Context, sessionID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, role, content, confidence, safety_flags, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// RecordSwitch applies a successful persona switch. The update is a
// compare-and-swap against the session's current persona: if
// sw.FromPersona is stale the call fails with Conflict and nothing is
// written, so two concurrent switches cannot both succeed.
func (s *Store) RecordSwitch(ctx context.Context, sessionID string, sw PersonaSwitch) (*PersonaSwitch, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, fault.ErrConflict)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning switch transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET current_persona_id = ?
		WHERE id = ? AND current_persona_id = ? AND status = 'active'`,
		sw.ToPersona, sessionID, sw.FromPersona,
	)
	if err != nil {
		return nil, fmt.Errorf("updating current persona: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking switch result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("switch from %s on session %s: %w", sw.FromPersona, sessionID, fault.ErrConflict)
	}

	sw = s.fillSwitch(sessionID, sw)
	sw.Success = true
	if err := insertSwitch(ctx, tx, sw); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing switch: %w", err)
	}
	return &sw, nil
}

// RecordFailedSwitch appends an audit record for a switch attempt that
// was rejected. The session's current persona is untouched.
func (s *Store) RecordFailedSwitch(ctx context.Context, sessionID string, sw PersonaSwitch) (*PersonaSwitch, error) {
	sw = s.fillSwitch(sessionID, sw)
	sw.Success = false
	if err := insertSwitch(ctx, s.db, sw); err != nil {
		return nil, err
	}
	return &sw, nil
}

func (s *Store) fillSwitch(sessionID string, sw PersonaSwitch) PersonaSwitch {
	if sw.ID == "" {
		sw.ID = uuid.New().String()
	}
	sw.SessionID = sessionID
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = time.Now().UTC()
	}
	return sw
}

// execer is implemented by both *sql.Tx and *db.DB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSwitch(ctx context.Context, e execer, sw PersonaSwitch) error {
	success := 0
	if sw.Success {
		success = 1
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO persona_switches (id, session_id, from_persona, to_persona, reason, triggered_by, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sw.ID, sw.SessionID, sw.FromPersona, sw.ToPersona, sw.Reason,
		string(sw.TriggeredBy), success, sw.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting persona switch: %w", err)
	}
	return nil
}

// Switches returns the ordered switch history of a session, including
// failed attempts.
func (s *Store) Switches(ctx context.Context, sessionID string) ([]PersonaSwitch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, from_persona, to_persona, reason, triggered_by, success, created_at
		FROM persona_switches WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying persona switches: %w", err)
	}
	defer rows.Close()

	var switches []PersonaSwitch
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, err
		}
		switches = append(switches, *sw)
	}
	return switches, rows.Err()
}

// End moves an active session to completed or reviewed and stops it
// accepting new messages. Alerts already raised against the session
// remain resolvable.
func (s *Store) End(ctx context.Context, sessionID string, status Status) (*Session, error) {
	if status != StatusCompleted && status != StatusReviewed {
		return nil, fmt.Errorf("%w: end status must be completed or reviewed", fault.ErrValidation)
	}

	endedAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = 'active'`,
		string(status), endedAt.Format(time.DateTime), sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("ending session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking end result: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, sessionID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("session %s already ended: %w", sessionID, fault.ErrConflict)
	}
	return s.Get(ctx, sessionID)
}

// Archive permanently deletes a session and its messages and switch
// history. Sessions are never deleted implicitly.
func (s *Store) Archive(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("archiving session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking archive result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, fault.ErrNotFound)
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		sess     Session
		status   string
		safeJSON string
		started  string
		ended    sql.NullString
	)
	err := sc.Scan(&sess.ID, &sess.LeadID, &sess.InitialPersonaID, &sess.CurrentPersonaID,
		&safeJSON, &status, &started, &ended)
	if err != nil {
		return nil, err
	}

	sess.Status = Status(status)
	sess.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		sess.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(safeJSON), &sess.SafePersonas); err != nil {
		sess.SafePersonas = nil
	}
	return &sess, nil
}

func scanMessage(sc scanner) (*Message, error) {
	var (
		m         Message
		role      string
		flagsJSON string
		created   string
	)
	err := sc.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Confidence, &flagsJSON, &created)
	if err != nil {
		return nil, err
	}
	m.Role = Role(role)
	m.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(flagsJSON), &m.SafetyFlags); err != nil {
		m.SafetyFlags = nil
	}
	return &m, nil
}

func scanSwitch(sc scanner) (*PersonaSwitch, error) {
	var (
		sw        PersonaSwitch
		triggered string
		success   int
		created   string
	)
	err := sc.Scan(&sw.ID, &sw.SessionID, &sw.FromPersona, &sw.ToPersona, &sw.Reason,
		&triggered, &success, &created)
	if err != nil {
		return nil, err
	}
	sw.TriggeredBy = TriggeredBy(triggered)
	sw.Success = success != 0
	sw.CreatedAt = parseTime(created)
	return &sw, nil
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
