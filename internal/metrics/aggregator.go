package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/db"
)

// Aggregator maintains rolling counters over the metric event stream.
// Every recorded event is appended to the durable metric_events table
// first; the in-memory counters are a cache that Replay can rebuild at
// any time, so losing aggregator state never loses data.
//
// Counters are bucketed by hour of the event's own timestamp, which
// makes late or out-of-order arrivals land in the correct window.
type Aggregator struct {
	db *db.DB

	mu      sync.RWMutex
	buckets map[time.Time]*counts
}

type counts struct {
	interactions       int64
	alerts             int64
	hallucinations     int64
	jailbreaksDetected int64
	jailbreaksBlocked  int64
	blocked            int64
	autoApprovals      int64
	manualReviews      int64
	escalations        int64
	switches           int64

	// State deltas: created alerts open review load, terminal
	// transitions close it.
	openReviewDelta   int64
	criticalOpenDelta int64
}

// NewAggregator creates an aggregator and rebuilds its counters from
// the durable event stream.
func NewAggregator(ctx context.Context, database *db.DB) (*Aggregator, error) {
	a := &Aggregator{
		db:      database,
		buckets: make(map[time.Time]*counts),
	}
	if err := a.Replay(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Record appends an event to the durable stream and folds it into the
// rolling counters.
func (a *Aggregator) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO metric_events (id, kind, session_id, alert_id, alert_type, severity, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.SessionID, e.AlertID, e.AlertType, e.Severity,
		e.Timestamp.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting metric event: %w", err)
	}

	a.mu.Lock()
	a.apply(e)
	a.mu.Unlock()
	return nil
}

// Replay discards the in-memory counters and rebuilds them from the
// metric_events table.
func (a *Aggregator) Replay(ctx context.Context) error {
	return a.ReplayWithProgress(ctx, nil)
}

// ReplayWithProgress is Replay with a callback invoked per replayed
// event, for progress reporting in the CLI. progress may be nil.
func (a *Aggregator) ReplayWithProgress(ctx context.Context, progress func(done, total int)) error {
	var total int
	if progress != nil {
		row := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metric_events")
		if err := row.Scan(&total); err != nil {
			return fmt.Errorf("counting metric events: %w", err)
		}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, session_id, alert_id, alert_type, severity, ts
		FROM metric_events ORDER BY ts, rowid`)
	if err != nil {
		return fmt.Errorf("querying metric events: %w", err)
	}
	defer rows.Close()

	buckets := make(map[time.Time]*counts)
	done := 0
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		applyTo(buckets, *e)
		done++
		if progress != nil {
			progress(done, total)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("replaying metric events: %w", err)
	}

	a.mu.Lock()
	a.buckets = buckets
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) apply(e Event) {
	applyTo(a.buckets, e)
}

func applyTo(buckets map[time.Time]*counts, e Event) {
	bucket := e.Timestamp.UTC().Truncate(time.Hour)
	c, ok := buckets[bucket]
	if !ok {
		c = &counts{}
		buckets[bucket] = c
	}

	switch e.Kind {
	case KindInteraction:
		c.interactions++
	case KindAlertCreated:
		c.alerts++
		c.openReviewDelta++
		countAlertType(c, e)
	case KindAlertAutoApproved:
		c.alerts++
		c.autoApprovals++
		countAlertType(c, e)
	case KindAlertApproved, KindAlertRejected:
		c.manualReviews++
		c.openReviewDelta--
		if e.Severity == "critical" {
			c.criticalOpenDelta--
		}
	case KindAlertReviewed:
		c.manualReviews++
	case KindAlertEscalated:
		c.escalations++
	case KindJailbreakBlocked:
		c.jailbreaksBlocked++
	case KindResponseBlocked:
		c.blocked++
	case KindPersonaSwitch:
		c.switches++
	}
}

func countAlertType(c *counts, e Event) {
	switch e.AlertType {
	case "hallucination":
		c.hallucinations++
	case "jailbreak":
		c.jailbreaksDetected++
	}
	if e.Severity == "critical" && e.Kind == KindAlertCreated {
		c.criticalOpenDelta++
	}
}

// Snapshot derives rates over the trailing window. Open review load and
// unresolved critical counts span all time, since they describe current
// state rather than windowed activity.
func (a *Aggregator) Snapshot(window time.Duration, weights Weights) Snapshot {
	now := time.Now().UTC()
	start := now.Add(-window)
	if window <= 0 {
		start = time.Time{}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{WindowStart: start, WindowEnd: now}
	for bucket, c := range a.buckets {
		snap.OpenReviewLoad += c.openReviewDelta
		snap.UnresolvedCritical += c.criticalOpenDelta

		// Bucket spans [bucket, bucket+1h); include it if it overlaps
		// the window.
		if bucket.Add(time.Hour).Before(start) {
			continue
		}
		snap.TotalInteractions += c.interactions
		snap.TotalAlerts += c.alerts
		snap.HallucinationAlerts += c.hallucinations
		snap.JailbreaksDetected += c.jailbreaksDetected
		snap.JailbreaksBlocked += c.jailbreaksBlocked
		snap.ResponsesBlocked += c.blocked
		snap.AutoApprovals += c.autoApprovals
		snap.ManualReviews += c.manualReviews
		snap.Escalations += c.escalations
		snap.PersonaSwitches += c.switches
	}
	if snap.OpenReviewLoad < 0 {
		snap.OpenReviewLoad = 0
	}
	if snap.UnresolvedCritical < 0 {
		snap.UnresolvedCritical = 0
	}

	if snap.TotalInteractions > 0 {
		snap.HallucinationRate = float64(snap.HallucinationAlerts) / float64(snap.TotalInteractions)
	}
	if snap.JailbreaksDetected > 0 {
		snap.JailbreakPreventionRate = float64(snap.JailbreaksBlocked) / float64(snap.JailbreaksDetected)
	} else {
		snap.JailbreakPreventionRate = 1
	}
	if snap.TotalAlerts > 0 {
		snap.AutoApprovalRate = float64(snap.AutoApprovals) / float64(snap.TotalAlerts)
	}

	score := 100 - snap.HallucinationRate*weights.Hallucination - float64(snap.UnresolvedCritical)*weights.CriticalAlert
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	snap.SafetyScore = score

	return snap
}

// EventFilter controls which events Events returns.
type EventFilter struct {
	Since *time.Time
	Kind  Kind
	Limit int
}

// Events returns events from the durable stream, newest first.
func (a *Aggregator) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	query := "SELECT id, kind, session_id, alert_id, alert_type, severity, ts FROM metric_events"
	var args []any
	var clauses []string
	if filter.Since != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY ts DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metric events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*Event, error) {
	var (
		e    Event
		kind string
		ts   string
	)
	if err := sc.Scan(&e.ID, &kind, &e.SessionID, &e.AlertID, &e.AlertType, &e.Severity, &ts); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	if t, err := time.Parse(time.DateTime, ts); err == nil {
		e.Timestamp = t
	}
	return &e, nil
}
