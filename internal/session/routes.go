package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
)

// EndHook runs after a session is ended through the API. May be nil.
type EndHook func(ctx context.Context, sess *Session)

// RegisterRoutes mounts session endpoints under /api/sessions. Message
// sending is owned by the orchestrator package; these routes cover
// creation, queries and lifecycle. Lifecycle mutations run on the
// session's actor queue so they serialize with in-flight turns.
func RegisterRoutes(r chi.Router, store *Store, actors *Actors, onEnd EndHook) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", handleCreate(store))
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGet(store))
		r.Get("/{id}/messages", handleMessages(store))
		r.Get("/{id}/switches", handleSwitches(store))
		r.Post("/{id}/end", handleEnd(store, actors, onEnd))
		r.Delete("/{id}", handleArchive(store, actors))
	})
}

type createRequest struct {
	LeadID       string   `json:"lead_id"`
	PersonaID    string   `json:"persona_id"`
	SafePersonas []string `json:"safe_personas"`
}

func handleCreate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		sess, err := store.Create(r.Context(), req.LeadID, req.PersonaID, req.SafePersonas)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sess)
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{LeadID: q.Get("lead")}
		if v := q.Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		sessions, err := store.List(r.Context(), filter)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleMessages(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			fault.WriteError(w, err)
			return
		}
		msgs, err := store.Messages(r.Context(), id)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleSwitches(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			fault.WriteError(w, err)
			return
		}
		switches, err := store.Switches(r.Context(), id)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, switches)
	}
}

type endRequest struct {
	Status Status `json:"status"`
}

func handleEnd(store *Store, actors *Actors, onEnd EndHook) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req endRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Status == "" {
			req.Status = StatusCompleted
		}
		id := chi.URLParam(r, "id")

		var sess *Session
		err := actors.Do(r.Context(), id, func(ctx context.Context) error {
			var err error
			sess, err = store.End(ctx, id, req.Status)
			return err
		})
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		if onEnd != nil {
			onEnd(r.Context(), sess)
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func handleArchive(store *Store, actors *Actors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := actors.Do(r.Context(), id, func(ctx context.Context) error {
			return store.Archive(ctx, id)
		})
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
