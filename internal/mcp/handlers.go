package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/session"
)

// handleListOpenAlerts returns the triage queue in a compact text form.
func (s *Server) handleListOpenAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := alerts.ListFilter{
		Status:   alerts.Status(request.GetString("status", string(alerts.StatusPending))),
		Severity: request.GetString("severity", ""),
		Limit:    request.GetInt("limit", 20),
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	list, err := s.alerts.List(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing alerts: %v", err)), nil
	}

	if len(list) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s alerts.", filter.Status)), nil
	}

	return mcp.NewToolResultText(formatAlertList(list)), nil
}

// handleGetAlert returns one alert as JSON.
func (s *Server) handleGetAlert(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("alert_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: alert_id"), nil
	}

	a, err := s.alerts.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("alert %s: %v", id, err)), nil
	}

	return jsonResult(a)
}

// handleGetSession returns the session, its transcript and switch history.
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s: %v", id, err)), nil
	}
	msgs, err := s.sessions.Messages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading transcript: %v", err)), nil
	}
	switches, err := s.sessions.Switches(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading switch history: %v", err)), nil
	}

	return mcp.NewToolResultText(formatSession(sess, msgs, switches)), nil
}

// handleGetMetrics returns the windowed metrics snapshot as JSON,
// weighted by the active safety config.
func (s *Server) handleGetMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var window time.Duration
	if hours := request.GetInt("window_hours", 0); hours > 0 {
		window = time.Duration(hours) * time.Hour
	}

	cfg := s.config.Snapshot().Config
	snap := s.agg.Snapshot(window, metrics.Weights{
		Hallucination: cfg.HallucinationWeight,
		CriticalAlert: cfg.CriticalAlertWeight,
	})

	return jsonResult(snap)
}

// handleGetSafetyConfig returns the versioned config snapshot as JSON.
func (s *Server) handleGetSafetyConfig(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.config.Snapshot())
}

// formatAlertList converts alerts into a text format optimized for AI
// agent consumption.
func formatAlertList(list []alerts.SafetyAlert) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d alert(s):\n", len(list)))

	for i, a := range list {
		sb.WriteString(fmt.Sprintf("\n--- Alert %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("ID: %s\n", a.ID))
		sb.WriteString(fmt.Sprintf("Session: %s\n", a.SessionID))
		sb.WriteString(fmt.Sprintf("Type: %s\n", a.Type))
		sb.WriteString(fmt.Sprintf("Severity: %s\n", a.Severity))
		sb.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", a.Confidence*100))
		sb.WriteString(fmt.Sprintf("Status: %s\n", a.Status))
		sb.WriteString(fmt.Sprintf("Created: %s\n", a.CreatedAt.Format(time.RFC3339)))
		if a.ReviewedBy != "" {
			sb.WriteString(fmt.Sprintf("Reviewed by: %s\n", a.ReviewedBy))
		}
	}

	return sb.String()
}

// formatSession renders a session summary with its transcript.
func formatSession(sess *session.Session, msgs []session.Message, switches []session.PersonaSwitch) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session %s\n", sess.ID))
	sb.WriteString(fmt.Sprintf("Lead: %s\n", sess.LeadID))
	sb.WriteString(fmt.Sprintf("Status: %s\n", sess.Status))
	sb.WriteString(fmt.Sprintf("Current persona: %s\n", sess.CurrentPersonaID))
	sb.WriteString(fmt.Sprintf("Started: %s\n", sess.StartedAt.Format(time.RFC3339)))

	if len(switches) > 0 {
		sb.WriteString("\nPersona switches:\n")
		for _, sw := range switches {
			result := "ok"
			if !sw.Success {
				result = "REJECTED"
			}
			sb.WriteString(fmt.Sprintf("  %s -> %s (%s, %s) %s\n",
				sw.FromPersona, sw.ToPersona, sw.TriggeredBy, sw.Reason, result))
		}
	}

	sb.WriteString(fmt.Sprintf("\nTranscript (%d messages):\n", len(msgs)))
	for _, m := range msgs {
		flags := ""
		if len(m.SafetyFlags) > 0 {
			flags = fmt.Sprintf(" [flags: %s]", strings.Join(m.SafetyFlags, ", "))
		}
		sb.WriteString(fmt.Sprintf("\n[%s]%s %s\n", m.Role, flags, m.Content))
	}

	return sb.String()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
