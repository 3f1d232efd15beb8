// Package idempotency makes mutating commands safe to retry. Clients
// stamp requests with X-Request-ID; the first execution's response is
// recorded and replayed verbatim for any retry carrying the same id.
package idempotency

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/convoguard/convoguard/internal/db"
)

// RequestIDHeader carries the client-supplied request id.
const RequestIDHeader = "X-Request-ID"

// ReplayHeader marks a response served from the idempotency record.
const ReplayHeader = "X-Idempotent-Replay"

// Record is one stored command response.
type Record struct {
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	CreatedAt  time.Time
}

// Store persists command responses keyed by client request id.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Get returns the stored record for a request id, or nil if unseen.
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, method, path, status_code, response_body, created_at
		FROM idempotency_keys WHERE request_id = ?`, requestID)

	var (
		rec     Record
		body    string
		created string
	)
	err := row.Scan(&rec.RequestID, &rec.Method, &rec.Path, &rec.StatusCode, &body, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying idempotency record: %w", err)
	}
	rec.Body = []byte(body)
	if t, err := time.Parse(time.DateTime, created); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}

// Put stores a command response. A concurrent duplicate insert loses
// silently; the first writer's record stands.
func (s *Store) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO idempotency_keys (request_id, method, path, status_code, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Method, rec.Path, rec.StatusCode, string(rec.Body),
		time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("storing idempotency record: %w", err)
	}
	return nil
}

// Prune deletes records older than the retention window.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM idempotency_keys WHERE created_at < ?",
		cutoff.Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning idempotency records: %w", err)
	}
	return res.RowsAffected()
}

// recorder captures a handler's response for storage.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Middleware replays stored responses for retried mutating commands.
// Requests without X-Request-ID, and all reads, pass through untouched.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if rec, err := store.Get(r.Context(), requestID); err == nil && rec != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(ReplayHeader, "true")
				w.WriteHeader(rec.StatusCode)
				w.Write(rec.Body)
				return
			}

			rw := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Only successful commands are replayable; a failed attempt
			// should execute for real on retry.
			if rw.status < 300 {
				_ = store.Put(r.Context(), Record{
					RequestID:  requestID,
					Method:     r.Method,
					Path:       r.URL.Path,
					StatusCode: rw.status,
					Body:       rw.body.Bytes(),
				})
			}
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
