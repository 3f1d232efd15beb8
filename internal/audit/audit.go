// Package audit keeps an append-only trail of staff and system actions
// on the triage surface: alert reviews, config changes, session ends.
package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorStaff  ActorType = "staff"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionAlertReviewed  Action = "alert_reviewed"
	ActionAlertApproved  Action = "alert_approved"
	ActionAlertRejected  Action = "alert_rejected"
	ActionAlertEscalated Action = "alert_escalated"
	ActionConfigUpdated  Action = "config_updated"
	ActionSessionEnded   Action = "session_ended"
)

// Subject is the kind of entity an action applies to.
type Subject string

const (
	SubjectAlert   Subject = "alert"
	SubjectSession Subject = "session"
	SubjectConfig  Subject = "config"
)

// Entry is a single audit record. Entries are immutable once logged.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ActorType ActorType `json:"actor_type"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Subject   Subject   `json:"subject"`
	SubjectID string    `json:"subject_id"`
	Detail    string    `json:"detail,omitempty"`
}
