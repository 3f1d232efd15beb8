package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/fault"
)

// Store owns the durable safety alert records and their state machine.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new alert. Status defaults to pending; the pipeline
// may create an alert directly in approved when auto-approval applies.
func (s *Store) Create(ctx context.Context, a SafetyAlert) (*SafetyAlert, error) {
	if a.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", fault.ErrValidation)
	}
	if a.Type == "" || a.Severity == "" {
		return nil, fmt.Errorf("%w: alert type and severity are required", fault.ErrValidation)
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_alerts (id, session_id, message_id, type, severity, confidence, status, reviewed_by, review_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.MessageID, a.Type, a.Severity, a.Confidence,
		string(a.Status), a.ReviewedBy, a.ReviewNotes,
		now.Format(time.DateTime), now.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting alert: %w", err)
	}
	return &a, nil
}

// Get retrieves an alert by id.
func (s *Store) Get(ctx context.Context, id string) (*SafetyAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, message_id, type, severity, confidence, status, reviewed_by, review_notes, created_at, updated_at
		FROM safety_alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, fault.ErrNotFound)
	}
	return a, err
}

// ListFilter controls which alerts List returns.
type ListFilter struct {
	Status    Status
	SessionID string
	Severity  string
	Limit     int
}

// List returns alerts matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]SafetyAlert, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, filter.Severity)
	}

	query := "SELECT id, session_id, message_id, type, severity, confidence, status, reviewed_by, review_notes, created_at, updated_at FROM safety_alerts"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []SafetyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// Transition moves an alert to a new status. The update is a
// compare-and-swap against the status observed here: an illegal state
// change fails with InvalidTransition, a concurrent change between read
// and write fails with Conflict and writes nothing.
func (s *Store) Transition(ctx context.Context, id string, to Status, reviewedBy, notes string) (*SafetyAlert, error) {
	if reviewedBy == "" {
		return nil, fmt.Errorf("%w: reviewed_by is required", fault.ErrValidation)
	}
	if to == StatusEscalated && notes == "" {
		return nil, fmt.Errorf("%w: escalation requires a reason", fault.ErrValidation)
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, to) {
		return nil, fmt.Errorf("alert %s: %s -> %s: %w", id, a.Status, to, fault.ErrInvalidTransition)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE safety_alerts SET status = ?, reviewed_by = ?, review_notes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), reviewedBy, notes, time.Now().UTC().Format(time.DateTime),
		id, string(a.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("transitioning alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking transition result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("alert %s changed concurrently: %w", id, fault.ErrConflict)
	}
	return s.Get(ctx, id)
}

// HasUnresolved reports whether the session's latest message still has
// a pending or escalated alert against it.
func (s *Store) HasUnresolved(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM safety_alerts
		WHERE session_id = ? AND status IN ('pending','escalated')
		AND message_id = COALESCE(
			(SELECT id FROM messages WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1), '')`,
		sessionID, sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking unresolved alerts: %w", err)
	}
	return n > 0, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(sc scanner) (*SafetyAlert, error) {
	var (
		a        SafetyAlert
		status   string
		reviewed sql.NullString
		notes    sql.NullString
		created  string
		updated  string
	)
	err := sc.Scan(&a.ID, &a.SessionID, &a.MessageID, &a.Type, &a.Severity, &a.Confidence,
		&status, &reviewed, &notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.ReviewedBy = reviewed.String
	a.ReviewNotes = notes.String
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
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
