package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

func setupServer(t *testing.T) (*Server, *alerts.Store, *session.Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	cfgStore, err := safetyconfig.NewStore(ctx, database)
	if err != nil {
		t.Fatalf("safetyconfig.NewStore: %v", err)
	}
	agg, err := metrics.NewAggregator(ctx, database)
	if err != nil {
		t.Fatalf("metrics.NewAggregator: %v", err)
	}

	alertStore := alerts.NewStore(database)
	sessions := session.NewStore(database)
	return NewServer(alertStore, sessions, agg, cfgStore), alertStore, sessions
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"list_open_alerts", listOpenAlertsTool, "list_open_alerts"},
		{"get_alert", getAlertTool, "get_alert"},
		{"get_session", getSessionTool, "get_session"},
		{"get_metrics", getMetricsTool, "get_metrics"},
		{"get_safety_config", getSafetyConfigTool, "get_safety_config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv, _, _ := setupServer(t)
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
}

func TestHandleListOpenAlerts(t *testing.T) {
	srv, alertStore, _ := setupServer(t)
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleListOpenAlerts(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if got := textContent(t, result); !strings.Contains(got, "No pending alerts") {
			t.Errorf("unexpected text: %q", got)
		}
	})

	if _, err := alertStore.Create(ctx, alerts.SafetyAlert{
		SessionID: "sess-1", Type: alerts.TypeJailbreak,
		Severity: alerts.SeverityCritical, Confidence: 0.95,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("pending alert listed", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleListOpenAlerts(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := textContent(t, result)
		for _, want := range []string{"Found 1 alert(s)", "jailbreak", "critical", "95.0%"} {
			if !strings.Contains(got, want) {
				t.Errorf("text missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("severity filter excludes", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"severity": "low"}

		result, err := srv.handleListOpenAlerts(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := textContent(t, result); !strings.Contains(got, "No pending alerts") {
			t.Errorf("expected empty result, got: %q", got)
		}
	})
}

func TestHandleGetAlert(t *testing.T) {
	srv, alertStore, _ := setupServer(t)
	ctx := context.Background()

	a, err := alertStore.Create(ctx, alerts.SafetyAlert{
		SessionID: "sess-1", Type: alerts.TypeHallucination,
		Severity: alerts.SeverityHigh, Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("existing alert", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"alert_id": a.ID}

		result, err := srv.handleGetAlert(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if got := textContent(t, result); !strings.Contains(got, a.ID) {
			t.Errorf("result missing alert id:\n%s", got)
		}
	})

	t.Run("missing alert_id", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleGetAlert(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing alert_id")
		}
	})

	t.Run("unknown alert", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"alert_id": "nope"}

		result, err := srv.handleGetAlert(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for unknown alert")
		}
	})
}

func TestHandleGetSession(t *testing.T) {
	srv, _, sessions := setupServer(t)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, "lead-1", "persona-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := sessions.AppendMessage(ctx, sess.ID, session.Message{
		Role: session.RoleLead, Content: "is this product HIPAA compliant?",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	t.Run("existing session", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"session_id": sess.ID}

		result, err := srv.handleGetSession(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		got := textContent(t, result)
		for _, want := range []string{sess.ID, "lead-1", "Transcript (1 messages)", "HIPAA"} {
			if !strings.Contains(got, want) {
				t.Errorf("text missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("missing session_id", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{}

		result, err := srv.handleGetSession(ctx, req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing session_id")
		}
	})
}

func TestHandleGetMetrics(t *testing.T) {
	srv, _, _ := setupServer(t)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"window_hours": 24}

	result, err := srv.handleGetMetrics(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
	if got := textContent(t, result); !strings.Contains(got, "safety_score") {
		t.Errorf("result missing safety_score:\n%s", got)
	}
}

func TestHandleGetSafetyConfig(t *testing.T) {
	srv, _, _ := setupServer(t)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{}

	result, err := srv.handleGetSafetyConfig(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}
	got := textContent(t, result)
	for _, want := range []string{"auto_approval_threshold", "\"version\": 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("result missing %q:\n%s", want, got)
		}
	}
}
