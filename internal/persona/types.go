package persona

import "time"

// Persona is one selling identity the system can respond as. A persona
// owns the triggers that route conversations toward it.
type Persona struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Tone         string    `json:"tone"`
	SystemPrompt string    `json:"system_prompt"`
	Dynamic      bool      `json:"dynamic"`
	Triggers     []Trigger `json:"triggers"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Trigger is a routing predicate. A trigger fires when one of its
// glob patterns matches a token of the inbound message, or when the
// intent classifier assigns the message to the trigger's intent
// category. Lower priority values are evaluated first.
type Trigger struct {
	Intent   string   `json:"intent"`
	Patterns []string `json:"patterns"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
}

// Decision is the router's verdict for one inbound message.
type Decision struct {
	PersonaID string `json:"persona_id"`
	Switched  bool   `json:"switched"`
	// Rejected is set when a trigger wanted to switch but the target
	// was outside the session's safe list.
	Rejected bool   `json:"rejected,omitempty"`
	Intent   string `json:"intent,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
