package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/fault"
)

// RuleStore owns the escalation rule catalog.
type RuleStore struct {
	db *db.DB
}

// NewRuleStore creates a RuleStore backed by the given database.
func NewRuleStore(database *db.DB) *RuleStore {
	return &RuleStore{db: database}
}

var validActions = map[string]bool{
	ActionFlag:     true,
	ActionBlock:    true,
	ActionEscalate: true,
	ActionShutdown: true,
}

func validateRule(r EscalationRule) error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", fault.ErrValidation)
	}
	if !validActions[r.Action] {
		return fmt.Errorf("%w: unknown rule action %q", fault.ErrValidation, r.Action)
	}
	if _, ok := severityRank[r.MinSeverity]; !ok {
		return fmt.Errorf("%w: unknown min severity %q", fault.ErrValidation, r.MinSeverity)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be in [0,1]", fault.ErrValidation)
	}
	return nil
}

// Create adds an escalation rule.
func (s *RuleStore) Create(ctx context.Context, r EscalationRule) (*EscalationRule, error) {
	if r.MinSeverity == "" {
		r.MinSeverity = SeverityLow
	}
	if r.Severity == "" {
		r.Severity = SeverityHigh
	}
	if err := validateRule(r); err != nil {
		return nil, err
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Priority == 0 {
		r.Priority = 50
	}
	r.CreatedAt = time.Now().UTC()

	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_rules (id, name, priority, enabled, alert_type, min_severity, min_confidence, action, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Priority, enabled, r.AlertType, r.MinSeverity, r.MinConfidence,
		r.Action, r.Severity, r.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting rule: %w", err)
	}
	return &r, nil
}

// Get retrieves a rule by id.
func (s *RuleStore) Get(ctx context.Context, id string) (*EscalationRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, priority, enabled, alert_type, min_severity, min_confidence, action, severity, created_at
		FROM escalation_rules WHERE id = ?`, id)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, fault.ErrNotFound)
	}
	return r, err
}

// List returns all rules in evaluation order: ascending priority, then
// creation order for stability.
func (s *RuleStore) List(ctx context.Context) ([]EscalationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, enabled, alert_type, min_severity, min_confidence, action, severity, created_at
		FROM escalation_rules ORDER BY priority, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []EscalationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// Update replaces a rule's fields.
func (s *RuleStore) Update(ctx context.Context, id string, r EscalationRule) (*EscalationRule, error) {
	if r.MinSeverity == "" {
		r.MinSeverity = SeverityLow
	}
	if r.Severity == "" {
		r.Severity = SeverityHigh
	}
	if err := validateRule(r); err != nil {
		return nil, err
	}

	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_rules SET name = ?, priority = ?, enabled = ?, alert_type = ?,
			min_severity = ?, min_confidence = ?, action = ?, severity = ?
		WHERE id = ?`,
		r.Name, r.Priority, enabled, r.AlertType, r.MinSeverity, r.MinConfidence,
		r.Action, r.Severity, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("rule %s: %w", id, fault.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Match returns the first enabled rule matching the assessment in
// priority order, or nil when no rule fires.
func (s *RuleStore) Match(ctx context.Context, a evaluator.Assessment) (*EscalationRule, error) {
	rules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		r := &rules[i]
		if !r.Enabled {
			continue
		}
		if r.AlertType != "" && r.AlertType != a.Type {
			continue
		}
		if !SeverityAtLeast(a.Severity, r.MinSeverity) {
			continue
		}
		if a.Confidence < r.MinConfidence {
			continue
		}
		return r, nil
	}
	return nil, nil
}

func scanRule(sc scanner) (*EscalationRule, error) {
	var (
		r       EscalationRule
		enabled int
		created string
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Priority, &enabled, &r.AlertType,
		&r.MinSeverity, &r.MinConfidence, &r.Action, &r.Severity, &created)
	if err != nil {
		return nil, err
	}
	r.Enabled = enabled != 0
	r.CreatedAt = parseTime(created)
	return &r, nil
}
