package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
)

// TransitionHook runs after a successful staff transition, for metric
// recording and push notifications. May be nil.
type TransitionHook func(ctx context.Context, a *SafetyAlert)

// RegisterRoutes mounts alert triage and rule management endpoints
// under /api/alerts.
func RegisterRoutes(r chi.Router, store *Store, rules *RuleStore, hook TransitionHook) {
	r.Route("/api/alerts", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/rules", handleListRules(rules))
		r.Post("/rules", handleCreateRule(rules))
		r.Put("/rules/{id}", handleUpdateRule(rules))
		r.Get("/{id}", handleGet(store))
		r.Post("/{id}/review", handleTransition(store, StatusReviewed, hook))
		r.Post("/{id}/approve", handleTransition(store, StatusApproved, hook))
		r.Post("/{id}/reject", handleTransition(store, StatusRejected, hook))
		r.Post("/{id}/escalate", handleTransition(store, StatusEscalated, hook))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			SessionID: q.Get("session"),
			Severity:  q.Get("severity"),
		}
		if v := q.Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		alerts, err := store.List(r.Context(), filter)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

func handleTransition(store *Store, to Status, hook TransitionHook) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		a, err := store.Transition(r.Context(), chi.URLParam(r, "id"), to, req.Reviewer, req.Notes)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		if hook != nil {
			hook(r.Context(), a)
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleListRules(rules *RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := rules.List(r.Context())
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateRule(rules *RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule EscalationRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		created, err := rules.Create(r.Context(), rule)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleUpdateRule(rules *RuleStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule EscalationRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		updated, err := rules.Update(r.Context(), chi.URLParam(r, "id"), rule)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
