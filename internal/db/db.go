package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with convoguard-specific helpers.
type DB struct {
	*sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS personas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    tone TEXT NOT NULL DEFAULT 'professional',
    system_prompt TEXT NOT NULL DEFAULT '',
    dynamic INTEGER NOT NULL DEFAULT 1,
    triggers TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    lead_id TEXT NOT NULL,
    initial_persona_id TEXT NOT NULL,
    current_persona_id TEXT NOT NULL,
    safe_personas TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','completed','reviewed')),
    started_at DATETIME NOT NULL DEFAULT (datetime('now')),
    ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_lead ON sessions(lead_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK(role IN ('lead','assistant','system')),
    content TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    safety_flags TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS persona_switches (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    from_persona TEXT NOT NULL,
    to_persona TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    triggered_by TEXT NOT NULL CHECK(triggered_by IN ('automatic','manual')),
    success INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_switches_session ON persona_switches(session_id, created_at);

CREATE TABLE IF NOT EXISTS safety_alerts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    message_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL CHECK(type IN ('hallucination','jailbreak','inappropriate','factual_error','bias','privacy','unknown')),
    severity TEXT NOT NULL CHECK(severity IN ('low','medium','high','critical')),
    confidence REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','reviewed','approved','rejected','escalated')),
    reviewed_by TEXT,
    review_notes TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_alerts_session ON safety_alerts(session_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON safety_alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON safety_alerts(created_at);

CREATE TABLE IF NOT EXISTS escalation_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 50,
    enabled INTEGER NOT NULL DEFAULT 1,
    alert_type TEXT NOT NULL DEFAULT '',
    min_severity TEXT NOT NULL DEFAULT 'low' CHECK(min_severity IN ('low','medium','high','critical')),
    min_confidence REAL NOT NULL DEFAULT 0,
    action TEXT NOT NULL CHECK(action IN ('flag','block','escalate','shutdown')),
    severity TEXT NOT NULL DEFAULT 'high' CHECK(severity IN ('low','medium','high','critical')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rules_priority ON escalation_rules(priority);

CREATE TABLE IF NOT EXISTS safety_config_versions (
    version INTEGER PRIMARY KEY AUTOINCREMENT,
    config TEXT NOT NULL,
    updated_by TEXT NOT NULL DEFAULT 'system',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metric_events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    alert_id TEXT NOT NULL DEFAULT '',
    alert_type TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT '',
    ts DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metric_events_ts ON metric_events(ts);
CREATE INDEX IF NOT EXISTS idx_metric_events_kind ON metric_events(kind);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    request_id TEXT PRIMARY KEY,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    response_body TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    ts DATETIME NOT NULL,
    actor_type TEXT NOT NULL CHECK(actor_type IN ('staff','system')),
    actor TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    subject TEXT NOT NULL CHECK(subject IN ('alert','session','config')),
    subject_id TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);
CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_entries(subject, subject_id);
`
