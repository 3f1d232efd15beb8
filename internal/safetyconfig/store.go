package safetyconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/fault"
)

// Store publishes versioned SafetyConfig snapshots. Reads never block:
// the current snapshot lives in an atomic.Value and is replaced
// wholesale on update (copy-on-write). Updates are serialized, persist
// a new version row, and only publish after the row is committed, so an
// invalid or failed update leaves the prior config untouched.
type Store struct {
	db      *db.DB
	mu      sync.Mutex // serializes writers
	current atomic.Value
}

// NewStore loads the latest persisted config version, seeding the
// default config as version 1 if none exists.
func NewStore(ctx context.Context, database *db.DB) (*Store, error) {
	s := &Store{db: database}

	snap, err := s.loadLatest(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		snap, err = s.persist(ctx, Default(), "system")
	}
	if err != nil {
		return nil, fmt.Errorf("loading safety config: %w", err)
	}

	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the current config snapshot. Lock-free; safe to call
// from any goroutine.
func (s *Store) Snapshot() Snapshot {
	return s.current.Load().(Snapshot)
}

// Update validates cfg, persists it as a new version and publishes it
// atomically. Invalid updates fail with ValidationError and leave the
// prior config unchanged.
func (s *Store) Update(ctx context.Context, cfg SafetyConfig, updatedBy string) (Snapshot, error) {
	if err := Validate(cfg); err != nil {
		return Snapshot{}, err
	}
	if updatedBy == "" {
		updatedBy = "system"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.persist(ctx, cfg, updatedBy)
	if err != nil {
		return Snapshot{}, err
	}
	s.current.Store(snap)
	return snap, nil
}

// Version returns a historical config version, for inspecting what an
// in-flight evaluation saw.
func (s *Store) Version(ctx context.Context, version int64) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, config, updated_by, created_at
		FROM safety_config_versions WHERE version = ?`, version)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("config version %d: %w", version, fault.ErrNotFound)
	}
	return snap, err
}

// Validate checks numeric bounds on a config.
func Validate(cfg SafetyConfig) error {
	if cfg.AutoApprovalThreshold < 0 || cfg.AutoApprovalThreshold > 100 {
		return fmt.Errorf("%w: auto_approval_threshold must be within [0,100]", fault.ErrValidation)
	}
	if cfg.EscalationThreshold < 0 || cfg.EscalationThreshold > 100 {
		return fmt.Errorf("%w: escalation_threshold must be within [0,100]", fault.ErrValidation)
	}
	if cfg.MaxResponseLength < 100 {
		return fmt.Errorf("%w: max_response_length must be >= 100", fault.ErrValidation)
	}
	if cfg.HallucinationWeight < 0 || cfg.CriticalAlertWeight < 0 {
		return fmt.Errorf("%w: score weights must be non-negative", fault.ErrValidation)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, cfg SafetyConfig, updatedBy string) (Snapshot, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshalling config: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO safety_config_versions (config, updated_by, created_at) VALUES (?, ?, ?)`,
		string(data), updatedBy, now.Format(time.DateTime),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("inserting config version: %w", err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading config version: %w", err)
	}

	return Snapshot{Version: version, Config: cfg, UpdatedBy: updatedBy, UpdatedAt: now}, nil
}

func (s *Store) loadLatest(ctx context.Context) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, config, updated_by, created_at
		FROM safety_config_versions ORDER BY version DESC LIMIT 1`)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (Snapshot, error) {
	var (
		snap       Snapshot
		configJSON string
		created    string
	)
	if err := row.Scan(&snap.Version, &configJSON, &snap.UpdatedBy, &created); err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(configJSON), &snap.Config); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshalling config version %d: %w", snap.Version, err)
	}
	if t, err := time.Parse(time.DateTime, created); err == nil {
		snap.UpdatedAt = t
	}
	return snap, nil
}
