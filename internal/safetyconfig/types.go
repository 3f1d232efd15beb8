package safetyconfig

import "time"

// SafetyConfig holds the mutable safety configuration consumed by the
// persona router, evaluator gateway and alert pipeline. Thresholds are
// percentages in [0,100].
type SafetyConfig struct {
	ManualModeEnabled     bool    `json:"manual_mode_enabled"`
	DynamicSwitchEnabled  bool    `json:"dynamic_switch_enabled"`
	AutoApprovalThreshold float64 `json:"auto_approval_threshold"`
	EscalationThreshold   float64 `json:"escalation_threshold"`
	MaxResponseLength     int     `json:"max_response_length"`

	// Weights for the composite safety score.
	HallucinationWeight float64 `json:"hallucination_weight"`
	CriticalAlertWeight float64 `json:"critical_alert_weight"`
}

// Snapshot is an immutable, versioned view of the config. Every
// evaluation run captures one snapshot when the message is received and
// uses it throughout, even if the config changes mid-evaluation.
type Snapshot struct {
	Version   int64        `json:"version"`
	Config    SafetyConfig `json:"config"`
	UpdatedBy string       `json:"updated_by"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Default returns the config seeded on first startup.
func Default() SafetyConfig {
	return SafetyConfig{
		ManualModeEnabled:     false,
		DynamicSwitchEnabled:  true,
		AutoApprovalThreshold: 80,
		EscalationThreshold:   95,
		MaxResponseLength:     1200,
		HallucinationWeight:   50,
		CriticalAlertWeight:   5,
	}
}
