package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
)

// RegisterRoutes mounts the message endpoint.
func RegisterRoutes(r chi.Router, engine *Engine) {
	r.Post("/api/sessions/{id}/messages", handleMessage(engine))
}

type messageRequest struct {
	Content string `json:"content"`
}

func handleMessage(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := engine.HandleMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
