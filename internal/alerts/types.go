package alerts

import "time"

// Status is the review state of a safety alert.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
)

// Terminal reports whether no transition is defined out of the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// transitions is the alert state machine. escalated is reachable only
// from pending, never from reviewed.
var transitions = map[Status][]Status{
	StatusPending:   {StatusReviewed, StatusApproved, StatusRejected, StatusEscalated},
	StatusReviewed:  {StatusApproved, StatusRejected},
	StatusEscalated: {StatusApproved, StatusRejected},
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Alert types, aligned with the evaluator taxonomy. TypeUnknown marks
// alerts raised when the evaluator timed out and the risk could not be
// classified.
const (
	TypeHallucination = "hallucination"
	TypeJailbreak     = "jailbreak"
	TypeInappropriate = "inappropriate"
	TypeFactualError  = "factual_error"
	TypeBias          = "bias"
	TypePrivacy       = "privacy"
	TypeUnknown       = "unknown"
)

// Severity levels, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SeverityAtLeast reports whether severity s is at or above min.
func SeverityAtLeast(s, min string) bool {
	return severityRank[s] >= severityRank[min]
}

// SafetyAlert is one flagged response awaiting (or past) triage.
type SafetyAlert struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	MessageID   string    `json:"message_id,omitempty"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Confidence  float64   `json:"confidence"`
	Status      Status    `json:"status"`
	ReviewedBy  string    `json:"reviewed_by,omitempty"`
	ReviewNotes string    `json:"review_notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Rule actions.
const (
	ActionFlag     = "flag"
	ActionBlock    = "block"
	ActionEscalate = "escalate"
	ActionShutdown = "shutdown"
)

// EscalationRule is a staff-editable predicate over risk assessments.
// Rules are evaluated in ascending priority order; the first enabled
// match wins.
type EscalationRule struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Priority      int       `json:"priority"`
	Enabled       bool      `json:"enabled"`
	AlertType     string    `json:"alert_type,omitempty"` // empty matches any type
	MinSeverity   string    `json:"min_severity"`
	MinConfidence float64   `json:"min_confidence"`
	Action        string    `json:"action"`
	Severity      string    `json:"severity"` // severity assigned to the resulting alert
	CreatedAt     time.Time `json:"created_at"`
}
