package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoguard/convoguard/internal/fault"
	"github.com/convoguard/convoguard/internal/safetyconfig"
)

// RegisterRoutes mounts metrics endpoints under /api/metrics. Score
// weights come from the live safety config.
func RegisterRoutes(r chi.Router, agg *Aggregator, cfg *safetyconfig.Store) {
	r.Route("/api/metrics", func(r chi.Router) {
		r.Get("/", handleSnapshot(agg, cfg))
		r.Get("/events", handleEvents(agg))
	})
}

func handleSnapshot(agg *Aggregator, cfg *safetyconfig.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := 24 * time.Hour
		if v := r.URL.Query().Get("window_hours"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				window = time.Duration(n) * time.Hour
			}
		}

		c := cfg.Snapshot().Config
		snap := agg.Snapshot(window, Weights{
			Hallucination: c.HallucinationWeight,
			CriticalAlert: c.CriticalAlertWeight,
		})
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleEvents(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := EventFilter{Limit: 100}
		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = &t
			}
		}
		if v := q.Get("kind"); v != "" {
			filter.Kind = Kind(v)
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		events, err := agg.Events(r.Context(), filter)
		if err != nil {
			fault.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
