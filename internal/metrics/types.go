package metrics

import "time"

// Kind identifies a metric event on the session/alert stream.
type Kind string

const (
	KindInteraction       Kind = "interaction"
	KindAlertCreated      Kind = "alert_created"
	KindAlertAutoApproved Kind = "alert_auto_approved"
	KindAlertApproved     Kind = "alert_approved"
	KindAlertRejected     Kind = "alert_rejected"
	KindAlertReviewed     Kind = "alert_reviewed"
	KindAlertEscalated    Kind = "alert_escalated"
	KindJailbreakBlocked  Kind = "jailbreak_blocked"
	KindResponseBlocked   Kind = "response_blocked"
	KindPersonaSwitch     Kind = "persona_switch"
)

// Event is one entry of the metric event stream. Events carry their own
// timestamp so out-of-order arrival aggregates into the right window.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	AlertID   string    `json:"alert_id,omitempty"`
	AlertType string    `json:"alert_type,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Weights configures the composite safety score.
type Weights struct {
	Hallucination float64
	CriticalAlert float64
}

// Snapshot is a derived view over a time window. It is a cache over the
// durable event stream, never the source of truth.
type Snapshot struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	TotalInteractions   int64 `json:"total_interactions"`
	TotalAlerts         int64 `json:"total_alerts"`
	HallucinationAlerts int64 `json:"hallucination_alerts"`
	JailbreaksDetected  int64 `json:"jailbreaks_detected"`
	JailbreaksBlocked   int64 `json:"jailbreaks_blocked"`
	ResponsesBlocked    int64 `json:"responses_blocked"`
	AutoApprovals       int64 `json:"auto_approvals"`
	ManualReviews       int64 `json:"manual_reviews"`
	Escalations         int64 `json:"escalations"`
	PersonaSwitches     int64 `json:"persona_switches"`

	// Open state across all time, not just the window.
	OpenReviewLoad     int64 `json:"open_review_load"`
	UnresolvedCritical int64 `json:"unresolved_critical"`

	HallucinationRate       float64 `json:"hallucination_rate"`
	JailbreakPreventionRate float64 `json:"jailbreak_prevention_rate"`
	AutoApprovalRate        float64 `json:"auto_approval_rate"`
	SafetyScore             float64 `json:"safety_score"`
}
