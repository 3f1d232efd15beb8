// Package generator is the gateway to the external response-generation
// collaborator: given session context and the active persona, it
// produces a draft reply for the lead's message.
package generator

import "context"

// ContextMessage is one prior conversation turn.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Persona carries the behavioral profile the draft should follow.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Tone         string `json:"tone"`
	SystemPrompt string `json:"system_prompt"`
}

// Request asks for a draft response to the lead's input.
type Request struct {
	SessionID string           `json:"session_id"`
	Persona   Persona          `json:"persona"`
	Input     string           `json:"input"`
	History   []ContextMessage `json:"history,omitempty"`
	MaxLength int              `json:"max_length,omitempty"`
}

// Response is a draft reply with the generator's self-reported
// confidence.
type Response struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model,omitempty"`
}

// Generator produces draft responses.
type Generator interface {
	// Generate returns a draft reply for the request.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Name returns the name of this generator.
	Name() string
}
