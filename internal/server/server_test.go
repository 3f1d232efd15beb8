package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/generator"
	"github.com/convoguard/convoguard/internal/idempotency"
)

type stubGenerator struct{}

func (stubGenerator) Name() string { return "stub" }

func (stubGenerator) Generate(context.Context, generator.Request) (*generator.Response, error) {
	return &generator.Response{Content: "Sure, happy to help.", Confidence: 0.9}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) Name() string { return "stub" }

func (stubEvaluator) Evaluate(context.Context, evaluator.Request) (*evaluator.Assessment, error) {
	return &evaluator.Assessment{Flagged: false}, nil
}

func setupServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	srv, err := New(context.Background(), Config{Port: 0}, database, stubGenerator{}, stubEvaluator{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, "GET", "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestRequestIDAvailableToHandlers(t *testing.T) {
	srv := setupServer(t)

	srv.Router().Get("/reqid", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(middleware.GetReqID(r.Context())))
	})

	w := doJSON(t, srv, "GET", "/reqid", nil, nil)
	if w.Body.String() == "" {
		t.Error("expected a request id in the handler context")
	}
}

func TestFullConversationFlow(t *testing.T) {
	srv := setupServer(t)

	// Persona, then session, then a message through the engine.
	w := doJSON(t, srv, "POST", "/api/personas", map[string]any{
		"name": "Opener", "dynamic": true,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create persona: %d: %s", w.Code, w.Body.String())
	}
	var p struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &p)

	w = doJSON(t, srv, "POST", "/api/sessions", map[string]any{
		"lead_id": "lead-1", "persona_id": p.ID,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d: %s", w.Code, w.Body.String())
	}
	var sess struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &sess)

	w = doJSON(t, srv, "POST", "/api/sessions/"+sess.ID+"/messages", map[string]any{
		"content": "hello there",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("send message: %d: %s", w.Code, w.Body.String())
	}
	var turn struct {
		Outcome string `json:"outcome"`
		Reply   struct {
			Content string `json:"content"`
		} `json:"reply"`
	}
	json.Unmarshal(w.Body.Bytes(), &turn)
	if turn.Outcome != "deliver" || turn.Reply.Content == "" {
		t.Errorf("turn = %+v, want delivered reply", turn)
	}

	// Metrics reflect the interaction.
	w = doJSON(t, srv, "GET", "/api/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	var snap struct {
		TotalInteractions int64 `json:"total_interactions"`
	}
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d, want 1", snap.TotalInteractions)
	}
}

func TestIdempotentSessionCreation(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, "POST", "/api/personas", map[string]any{"name": "Opener"}, nil)
	var p struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &p)

	body := map[string]any{"lead_id": "lead-1", "persona_id": p.ID}
	headers := map[string]string{idempotency.RequestIDHeader: "create-1"}

	first := doJSON(t, srv, "POST", "/api/sessions", body, headers)
	second := doJSON(t, srv, "POST", "/api/sessions", body, headers)

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("retry produced a different session:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if second.Header().Get(idempotency.ReplayHeader) != "true" {
		t.Errorf("retry was not served from the idempotency record")
	}
}

func TestSafetyConfigRoundTrip(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, "GET", "/api/safety/config", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get config: %d", w.Code)
	}

	w = doJSON(t, srv, "PUT", "/api/safety/config", map[string]any{
		"config": map[string]any{
			"manual_mode_enabled":     true,
			"dynamic_switch_enabled":  true,
			"auto_approval_threshold": 85,
			"escalation_threshold":    95,
			"max_response_length":     1000,
			"hallucination_weight":    50,
			"critical_alert_weight":   5,
		},
		"updated_by": "alice",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update config: %d: %s", w.Code, w.Body.String())
	}

	var snap struct {
		Version int64 `json:"version"`
		Config  struct {
			ManualModeEnabled bool `json:"manual_mode_enabled"`
		} `json:"config"`
	}
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Version != 2 || !snap.Config.ManualModeEnabled {
		t.Errorf("snapshot = %+v, want version 2 with manual mode on", snap)
	}
}

func TestCORSHeaders(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer database.Close()

	srv, err := New(context.Background(), Config{Port: 0, AllowAll: true}, database, stubGenerator{}, stubEvaluator{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Shutdown(context.Background())

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}
