package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		ID:        "entry-1",
		Actor:     "alice",
		Action:    ActionAlertApproved,
		Subject:   SubjectAlert,
		SubjectID: "alert-1",
		Detail:    "verified against the product docs",
	}
	if err := store.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got, err := store.Get(ctx, "entry-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Actor != "alice" || got.Action != ActionAlertApproved || got.SubjectID != "alert-1" {
		t.Errorf("entry = %+v", got)
	}
	if got.ActorType != ActorStaff {
		t.Errorf("ActorType = %q, want default staff", got.ActorType)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestGetMissing(t *testing.T) {
	store := setupStore(t)

	if _, err := store.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Actor: "alice", Action: ActionAlertApproved, Subject: SubjectAlert, SubjectID: "a-1"},
		{Actor: "bob", Action: ActionAlertRejected, Subject: SubjectAlert, SubjectID: "a-2"},
		{Actor: "alice", Action: ActionConfigUpdated, Subject: SubjectConfig, SubjectID: "2"},
	}
	for _, e := range entries {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	byActor, err := store.Query(ctx, QueryFilter{Actor: "alice"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("actor filter returned %d entries, want 2", len(byActor))
	}

	bySubject, err := store.Query(ctx, QueryFilter{Subject: SubjectConfig})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(bySubject) != 1 || bySubject[0].Action != ActionConfigUpdated {
		t.Errorf("subject filter = %+v", bySubject)
	}

	byAction, err := store.Query(ctx, QueryFilter{Action: ActionAlertRejected})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byAction) != 1 || byAction[0].Actor != "bob" {
		t.Errorf("action filter = %+v", byAction)
	}
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	old := Entry{Actor: "alice", Action: ActionAlertApproved, Subject: SubjectAlert,
		SubjectID: "a-1", Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	recent := Entry{Actor: "bob", Action: ActionAlertRejected, Subject: SubjectAlert, SubjectID: "a-2"}
	if err := store.Log(ctx, old); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := store.Log(ctx, recent); err != nil {
		t.Fatalf("Log: %v", err)
	}

	n, err := store.DeleteBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d entries, want 1", n)
	}

	remaining, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Actor != "bob" {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestAuditRoutes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Log(ctx, Entry{
		ID: "entry-1", Actor: "alice", Action: ActionAlertEscalated,
		Subject: SubjectAlert, SubjectID: "a-1",
	}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	r := chi.NewRouter()
	RegisterRoutes(r, store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit?actor=alice", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("query: %d", w.Code)
	}
	var list []Entry
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 || list[0].ID != "entry-1" {
		t.Errorf("list = %+v", list)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit/entry-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/audit/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entry: %d, want 404", w.Code)
	}
}
