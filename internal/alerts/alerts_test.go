package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/fault"
)

func setupStore(t *testing.T) (*Store, *RuleStore) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database), NewRuleStore(database)
}

func mustCreateAlert(t *testing.T, store *Store, a SafetyAlert) *SafetyAlert {
	t.Helper()
	if a.SessionID == "" {
		a.SessionID = "sess-1"
	}
	if a.Type == "" {
		a.Type = TypeHallucination
	}
	if a.Severity == "" {
		a.Severity = SeverityMedium
	}
	created, err := store.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create alert: %v", err)
	}
	return created
}

func TestAlertCreatedPending(t *testing.T) {
	store, _ := setupStore(t)

	a := mustCreateAlert(t, store, SafetyAlert{})
	if a.Status != StatusPending {
		t.Errorf("Status = %s, want pending", a.Status)
	}

	got, err := store.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("stored Status = %s, want pending", got.Status)
	}
}

func TestTransitionHappyPaths(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	// pending -> reviewed -> approved
	a := mustCreateAlert(t, store, SafetyAlert{})
	if _, err := store.Transition(ctx, a.ID, StatusReviewed, "alice", ""); err != nil {
		t.Fatalf("review: %v", err)
	}
	got, err := store.Transition(ctx, a.ID, StatusApproved, "alice", "looks fine")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != StatusApproved || got.ReviewedBy != "alice" {
		t.Errorf("alert = %+v, want approved by alice", got)
	}

	// pending -> escalated -> rejected
	b := mustCreateAlert(t, store, SafetyAlert{})
	if _, err := store.Transition(ctx, b.ID, StatusEscalated, "bob", "needs legal"); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if _, err := store.Transition(ctx, b.ID, StatusRejected, "bob", ""); err != nil {
		t.Fatalf("reject after escalate: %v", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	a := mustCreateAlert(t, store, SafetyAlert{})
	if _, err := store.Transition(ctx, a.ID, StatusApproved, "alice", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	for _, to := range []Status{StatusApproved, StatusRejected, StatusReviewed, StatusPending} {
		_, err := store.Transition(ctx, a.ID, to, "alice", "again")
		if !errors.Is(err, fault.ErrInvalidTransition) {
			t.Errorf("transition approved -> %s = %v, want InvalidTransition", to, err)
		}
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %s after failed transitions, want approved", got.Status)
	}
}

func TestEscalatedOnlyFromPending(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	a := mustCreateAlert(t, store, SafetyAlert{})
	if _, err := store.Transition(ctx, a.ID, StatusReviewed, "alice", ""); err != nil {
		t.Fatalf("review: %v", err)
	}

	_, err := store.Transition(ctx, a.ID, StatusEscalated, "alice", "second thoughts")
	if !errors.Is(err, fault.ErrInvalidTransition) {
		t.Errorf("escalate from reviewed = %v, want InvalidTransition", err)
	}
}

func TestTransitionValidation(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	a := mustCreateAlert(t, store, SafetyAlert{})

	if _, err := store.Transition(ctx, a.ID, StatusApproved, "", ""); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("approve without reviewer = %v, want ValidationError", err)
	}
	if _, err := store.Transition(ctx, a.ID, StatusEscalated, "alice", ""); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("escalate without reason = %v, want ValidationError", err)
	}
	if _, err := store.Transition(ctx, "missing", StatusApproved, "alice", ""); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("transition on missing alert = %v, want NotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	mustCreateAlert(t, store, SafetyAlert{SessionID: "s1", Severity: SeverityCritical})
	a := mustCreateAlert(t, store, SafetyAlert{SessionID: "s2"})
	if _, err := store.Transition(ctx, a.ID, StatusApproved, "alice", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pending, err := store.List(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].SessionID != "s1" {
		t.Errorf("pending = %+v, want the s1 alert only", pending)
	}

	bySession, err := store.List(ctx, ListFilter{SessionID: "s2"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bySession) != 1 || bySession[0].Status != StatusApproved {
		t.Errorf("bySession = %+v, want the approved s2 alert", bySession)
	}
}

func TestRuleMatchPriorityOrder(t *testing.T) {
	_, rules := setupStore(t)
	ctx := context.Background()

	if _, err := rules.Create(ctx, EscalationRule{
		Name: "catch-all flag", Priority: 90, Enabled: true, Action: ActionFlag,
	}); err != nil {
		t.Fatalf("Create rule: %v", err)
	}
	blocker, err := rules.Create(ctx, EscalationRule{
		Name: "block jailbreaks", Priority: 10, Enabled: true,
		AlertType: TypeJailbreak, MinSeverity: SeverityHigh, Action: ActionBlock,
	})
	if err != nil {
		t.Fatalf("Create rule: %v", err)
	}
	if _, err := rules.Create(ctx, EscalationRule{
		Name: "disabled blocker", Priority: 1, Enabled: false, Action: ActionBlock,
	}); err != nil {
		t.Fatalf("Create rule: %v", err)
	}

	matched, err := rules.Match(ctx, evaluator.Assessment{
		Flagged: true, Type: TypeJailbreak, Severity: SeverityCritical, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched == nil || matched.ID != blocker.ID {
		t.Errorf("Match = %+v, want the enabled jailbreak blocker", matched)
	}

	// Below min severity: falls through to the catch-all.
	matched, err = rules.Match(ctx, evaluator.Assessment{
		Flagged: true, Type: TypeJailbreak, Severity: SeverityLow, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if matched == nil || matched.Name != "catch-all flag" {
		t.Errorf("Match = %+v, want catch-all", matched)
	}
}

func TestRuleValidation(t *testing.T) {
	_, rules := setupStore(t)
	ctx := context.Background()

	cases := []EscalationRule{
		{Name: "", Action: ActionFlag},
		{Name: "bad action", Action: "explode"},
		{Name: "bad confidence", Action: ActionFlag, MinConfidence: 2},
	}
	for _, r := range cases {
		if _, err := rules.Create(ctx, r); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("Create(%+v) = %v, want ValidationError", r, err)
		}
	}
}
