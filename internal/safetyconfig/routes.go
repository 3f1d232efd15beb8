package safetyconfig

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
)

// UpdateHook runs after a successful config update. May be nil.
type UpdateHook func(snap Snapshot)

// RegisterRoutes mounts safety config endpoints under /api/safety/config.
func RegisterRoutes(r chi.Router, store *Store, hook UpdateHook) {
	r.Route("/api/safety/config", func(r chi.Router) {
		r.Get("/", handleGet(store))
		r.Put("/", handleUpdate(store, hook))
	})
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Snapshot())
	}
}

type updateRequest struct {
	Config    SafetyConfig `json:"config"`
	UpdatedBy string       `json:"updated_by"`
}

func handleUpdate(store *Store, hook UpdateHook) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		snap, err := store.Update(r.Context(), req.Config, req.UpdatedBy)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		if hook != nil {
			hook(snap)
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
