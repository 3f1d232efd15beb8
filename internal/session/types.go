package session

import "time"

// Status is the lifecycle state of a conversation session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusReviewed  Status = "reviewed"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleLead      Role = "lead"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TriggeredBy records whether a persona switch was automatic or manual.
type TriggeredBy string

const (
	TriggeredAutomatic TriggeredBy = "automatic"
	TriggeredManual    TriggeredBy = "manual"
)

// Session is one continuous conversation between a lead and the system,
// spanning one or more personas.
type Session struct {
	ID               string     `json:"id"`
	LeadID           string     `json:"lead_id"`
	InitialPersonaID string     `json:"initial_persona_id"`
	CurrentPersonaID string     `json:"current_persona_id"`
	SafePersonas     []string   `json:"safe_personas"`
	Status           Status     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// PersonaAllowed reports whether the given persona is in the session's
// safe list. An empty list means no restriction.
func (s *Session) PersonaAllowed(personaID string) bool {
	if len(s.SafePersonas) == 0 {
		return true
	}
	for _, p := range s.SafePersonas {
		if p == personaID {
			return true
		}
	}
	return false
}

// Message is a single conversation message. Messages are immutable once
// appended; corrections are new messages, never edits.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence"`
	SafetyFlags []string  `json:"safety_flags"`
	CreatedAt   time.Time `json:"created_at"`
}

// PersonaSwitch is an append-only audit record of a persona change
// attempt. Failed attempts (policy rejections) are recorded with
// Success = false and do not change the session's current persona.
type PersonaSwitch struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	FromPersona string      `json:"from_persona"`
	ToPersona   string      `json:"to_persona"`
	Reason      string      `json:"reason"`
	TriggeredBy TriggeredBy `json:"triggered_by"`
	Success     bool        `json:"success"`
	CreatedAt   time.Time   `json:"created_at"`
}
