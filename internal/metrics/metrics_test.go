package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/convoguard/convoguard/internal/db"
)

func setupAggregator(t *testing.T) *Aggregator {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	agg, err := NewAggregator(context.Background(), database)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}

var testWeights = Weights{Hallucination: 50, CriticalAlert: 5}

func TestHallucinationRate(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		agg.Record(ctx, Event{Kind: KindInteraction, SessionID: "s1"})
	}
	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "hallucination", Severity: "medium"})

	snap := agg.Snapshot(24*time.Hour, testWeights)
	if snap.TotalInteractions != 10 {
		t.Errorf("TotalInteractions = %d, want 10", snap.TotalInteractions)
	}
	if snap.HallucinationRate != 0.1 {
		t.Errorf("HallucinationRate = %v, want 0.1", snap.HallucinationRate)
	}
}

func TestJailbreakPreventionRate(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "jailbreak", Severity: "critical"})
	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "jailbreak", Severity: "high"})
	agg.Record(ctx, Event{Kind: KindJailbreakBlocked})

	snap := agg.Snapshot(24*time.Hour, testWeights)
	if snap.JailbreaksDetected != 2 {
		t.Errorf("JailbreaksDetected = %d, want 2", snap.JailbreaksDetected)
	}
	if snap.JailbreakPreventionRate != 0.5 {
		t.Errorf("JailbreakPreventionRate = %v, want 0.5", snap.JailbreakPreventionRate)
	}
}

func TestJailbreakPreventionRateNoDetections(t *testing.T) {
	agg := setupAggregator(t)

	snap := agg.Snapshot(24*time.Hour, testWeights)
	if snap.JailbreakPreventionRate != 1 {
		t.Errorf("JailbreakPreventionRate = %v, want 1 with no detections", snap.JailbreakPreventionRate)
	}
}

func TestSafetyScoreDeductions(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	// 1 hallucination over 2 interactions, 1 unresolved critical.
	agg.Record(ctx, Event{Kind: KindInteraction})
	agg.Record(ctx, Event{Kind: KindInteraction})
	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "hallucination", Severity: "critical"})

	snap := agg.Snapshot(24*time.Hour, testWeights)
	// 100 - 0.5*50 - 1*5 = 70
	if snap.SafetyScore != 70 {
		t.Errorf("SafetyScore = %v, want 70", snap.SafetyScore)
	}

	// Resolving the critical alert restores its deduction.
	agg.Record(ctx, Event{Kind: KindAlertRejected, Severity: "critical"})
	snap = agg.Snapshot(24*time.Hour, testWeights)
	if snap.UnresolvedCritical != 0 {
		t.Errorf("UnresolvedCritical = %d, want 0", snap.UnresolvedCritical)
	}
	if snap.SafetyScore != 75 {
		t.Errorf("SafetyScore = %v, want 75", snap.SafetyScore)
	}
}

func TestOpenReviewLoad(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "bias", Severity: "low", AlertID: "a1"})
	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "privacy", Severity: "medium", AlertID: "a2"})
	agg.Record(ctx, Event{Kind: KindAlertApproved, Severity: "low", AlertID: "a1"})

	snap := agg.Snapshot(24*time.Hour, testWeights)
	if snap.OpenReviewLoad != 1 {
		t.Errorf("OpenReviewLoad = %d, want 1", snap.OpenReviewLoad)
	}
	if snap.ManualReviews != 1 {
		t.Errorf("ManualReviews = %d, want 1", snap.ManualReviews)
	}
}

func TestOutOfOrderEvents(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	// Late-arriving event lands outside the 24h window.
	agg.Record(ctx, Event{Kind: KindInteraction, Timestamp: now})
	agg.Record(ctx, Event{Kind: KindInteraction, Timestamp: old})

	snap := agg.Snapshot(24*time.Hour, testWeights)
	if snap.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d, want 1 (old event outside window)", snap.TotalInteractions)
	}

	all := agg.Snapshot(0, testWeights)
	if all.TotalInteractions != 2 {
		t.Errorf("all-time TotalInteractions = %d, want 2", all.TotalInteractions)
	}
}

func TestReplayMatchesIncremental(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	events := []Event{
		{Kind: KindInteraction, SessionID: "s1"},
		{Kind: KindInteraction, SessionID: "s2"},
		{Kind: KindAlertCreated, AlertType: "jailbreak", Severity: "critical", AlertID: "a1"},
		{Kind: KindJailbreakBlocked, AlertID: "a1"},
		{Kind: KindResponseBlocked, SessionID: "s1"},
		{Kind: KindAlertAutoApproved, AlertType: "hallucination", Severity: "low", AlertID: "a2"},
		{Kind: KindAlertEscalated, AlertID: "a1"},
		{Kind: KindAlertRejected, Severity: "critical", AlertID: "a1"},
		{Kind: KindPersonaSwitch, SessionID: "s1"},
	}
	for _, e := range events {
		if err := agg.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	incremental := agg.Snapshot(0, testWeights)

	if err := agg.Replay(ctx); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	replayed := agg.Snapshot(0, testWeights)

	// Window edges differ between the two snapshots; compare counters.
	incremental.WindowStart, replayed.WindowStart = time.Time{}, time.Time{}
	incremental.WindowEnd, replayed.WindowEnd = time.Time{}, time.Time{}
	if incremental != replayed {
		t.Errorf("replayed state differs from incremental:\nincremental: %+v\nreplayed:    %+v", incremental, replayed)
	}
}

func TestEventsQuery(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	agg.Record(ctx, Event{Kind: KindInteraction, SessionID: "s1"})
	agg.Record(ctx, Event{Kind: KindAlertCreated, AlertType: "bias", Severity: "low"})

	events, err := agg.Events(ctx, EventFilter{Kind: KindAlertCreated})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].AlertType != "bias" {
		t.Errorf("Events = %v, want one alert_created event", events)
	}
}
