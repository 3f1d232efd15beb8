package mcp

import "github.com/mark3labs/mcp-go/mcp"

// listOpenAlertsTool defines the list_open_alerts MCP tool.
var listOpenAlertsTool = mcp.NewTool("list_open_alerts",
	mcp.WithDescription("List safety alerts awaiting triage, most recent first."),
	mcp.WithString("status",
		mcp.Description("Review state to filter on (default pending)"),
		mcp.Enum("pending", "reviewed", "escalated"),
	),
	mcp.WithString("severity",
		mcp.Description("Only return alerts of this severity"),
		mcp.Enum("low", "medium", "high", "critical"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)"),
	),
)

// getAlertTool defines the get_alert MCP tool.
var getAlertTool = mcp.NewTool("get_alert",
	mcp.WithDescription("Get the full record of one safety alert, including review history."),
	mcp.WithString("alert_id",
		mcp.Required(),
		mcp.Description("ID of the alert"),
	),
)

// getSessionTool defines the get_session MCP tool.
var getSessionTool = mcp.NewTool("get_session",
	mcp.WithDescription("Get a conversation session: current persona, transcript and persona switch history."),
	mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("ID of the session"),
	),
)

// getMetricsTool defines the get_metrics MCP tool.
var getMetricsTool = mcp.NewTool("get_metrics",
	mcp.WithDescription("Get the safety metrics snapshot: interaction counts, rates, safety score and review load."),
	mcp.WithNumber("window_hours",
		mcp.Description("Aggregation window in hours (default all time)"),
	),
)

// getSafetyConfigTool defines the get_safety_config MCP tool.
var getSafetyConfigTool = mcp.NewTool("get_safety_config",
	mcp.WithDescription("Get the active safety configuration (thresholds, manual mode, score weights) with its version."),
)
