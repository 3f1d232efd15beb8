package persona

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
	"github.com/convoguard/convoguard/internal/session"
)

// RegisterRoutes mounts persona catalog endpoints and the manual switch
// endpoint. Switches run on the session's actor queue so they serialize
// with message handling.
func RegisterRoutes(r chi.Router, store *Store, router *Router, actors *session.Actors) {
	r.Route("/api/personas", func(r chi.Router) {
		r.Post("/", handleCreate(store))
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGet(store))
		r.Put("/{id}", handleUpdate(store))
	})
	r.Post("/api/sessions/{id}/switch", handleSwitch(router, actors))
}

func handleCreate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Persona
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		created, err := store.Create(r.Context(), p)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personas, err := store.List(r.Context())
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, personas)
	}
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdate(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Persona
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		updated, err := store.Update(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

type switchRequest struct {
	ToPersona string `json:"to_persona"`
	Reason    string `json:"reason"`
	Reviewer  string `json:"reviewer"`
}

func handleSwitch(router *Router, actors *session.Actors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req switchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		sessionID := chi.URLParam(r, "id")

		var sw *session.PersonaSwitch
		err := actors.Do(r.Context(), sessionID, func(ctx context.Context) error {
			var err error
			sw, err = router.ManualSwitch(ctx, sessionID, req.ToPersona, req.Reason, req.Reviewer)
			return err
		})
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sw)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
