// Package evaluator is the gateway to the external risk-classification
// collaborator. The engine never inspects model output itself; it hands
// every draft response to an Evaluator and acts on the structured
// assessment that comes back.
package evaluator

import "context"

// Risk types, aligned with the safety alert taxonomy.
const (
	TypeHallucination = "hallucination"
	TypeJailbreak     = "jailbreak"
	TypeInappropriate = "inappropriate"
	TypeFactualError  = "factual_error"
	TypeBias          = "bias"
	TypePrivacy       = "privacy"
)

// Severity levels, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ContextMessage is one prior conversation turn passed to the evaluator.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries a draft response and its session context.
type Request struct {
	Draft     string           `json:"draft"`
	PersonaID string           `json:"persona_id"`
	LeadInput string           `json:"lead_input"`
	History   []ContextMessage `json:"history,omitempty"`
}

// FactCheck is a single claim verification from the evaluator.
type FactCheck struct {
	Claim   string `json:"claim"`
	Verdict string `json:"verdict"` // supported, unsupported, uncertain
	Source  string `json:"source,omitempty"`
}

// JailbreakAnalysis describes a detected manipulation attempt.
type JailbreakAnalysis struct {
	Technique  string   `json:"technique"`
	Indicators []string `json:"indicators,omitempty"`
}

// Assessment is the structured risk verdict for one draft response.
// Confidence is the classifier's certainty in [0,1]; a high-confidence
// low-severity assessment is a candidate for auto-approval.
type Assessment struct {
	Flagged     bool               `json:"flagged"`
	Type        string             `json:"type,omitempty"`
	Severity    string             `json:"severity,omitempty"`
	Confidence  float64            `json:"confidence"`
	Explanation string             `json:"explanation,omitempty"`
	FactChecks  []FactCheck        `json:"fact_checks,omitempty"`
	Jailbreak   *JailbreakAnalysis `json:"jailbreak_analysis,omitempty"`
}

// Evaluator classifies draft responses for safety risk.
type Evaluator interface {
	// Evaluate returns a risk assessment for the draft response.
	Evaluate(ctx context.Context, req Request) (*Assessment, error)
	// Name returns the name of this evaluator.
	Name() string
}
