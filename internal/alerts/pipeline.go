package alerts

import (
	"context"

	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/safetyconfig"
)

// Outcome is the delivery decision for a draft response.
type Outcome string

const (
	// OutcomeDeliver ships the draft unmodified.
	OutcomeDeliver Outcome = "deliver"
	// OutcomeDeliverFlagged ships the draft with a visible safety flag.
	OutcomeDeliverFlagged Outcome = "deliver_flagged"
	// OutcomeWithhold keeps the draft back pending review.
	OutcomeWithhold Outcome = "withhold"
	// OutcomeBlock discards the draft; the lead gets a fallback message.
	OutcomeBlock Outcome = "block"
)

// Disposition is the pipeline's verdict for one assessed draft.
type Disposition struct {
	Outcome Outcome
	Alert   *SafetyAlert
	Rule    *EscalationRule
	// EndSession is set when a shutdown rule fired: the session must
	// stop accepting messages after the fallback is delivered.
	EndSession bool
}

// Pipeline turns risk assessments into alerts and delivery decisions.
type Pipeline struct {
	alerts *Store
	rules  *RuleStore
}

// NewPipeline creates a Pipeline over the given stores.
func NewPipeline(alerts *Store, rules *RuleStore) *Pipeline {
	return &Pipeline{alerts: alerts, rules: rules}
}

// Process applies escalation rules and the auto-approval policy to one
// assessment. cfg is the snapshot taken when the message was received.
//
// Decision order: escalation rules first (first enabled match in
// priority order wins), then auto-approval, then the manual-mode
// default of withholding versus delivering flagged.
func (p *Pipeline) Process(ctx context.Context, sessionID, messageID string, a evaluator.Assessment, cfg safetyconfig.SafetyConfig) (*Disposition, error) {
	if !a.Flagged {
		return &Disposition{Outcome: OutcomeDeliver}, nil
	}

	rule, err := p.rules.Match(ctx, a)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		return p.applyRule(ctx, sessionID, messageID, a, rule)
	}

	// Auto-approval: high confidence, low stakes, and only while the
	// deployment is not in manual mode.
	if !cfg.ManualModeEnabled &&
		a.Confidence*100 >= cfg.AutoApprovalThreshold &&
		(a.Severity == SeverityLow || a.Severity == SeverityMedium) {
		alert, err := p.alerts.Create(ctx, SafetyAlert{
			SessionID:  sessionID,
			MessageID:  messageID,
			Type:       a.Type,
			Severity:   a.Severity,
			Confidence: a.Confidence,
			Status:     StatusApproved,
			ReviewedBy: "auto",
		})
		if err != nil {
			return nil, err
		}
		return &Disposition{Outcome: OutcomeDeliver, Alert: alert}, nil
	}

	alert, err := p.alerts.Create(ctx, SafetyAlert{
		SessionID:  sessionID,
		MessageID:  messageID,
		Type:       a.Type,
		Severity:   a.Severity,
		Confidence: a.Confidence,
	})
	if err != nil {
		return nil, err
	}

	// Very confident flags are withheld even outside manual mode.
	if cfg.ManualModeEnabled || a.Confidence*100 >= cfg.EscalationThreshold {
		return &Disposition{Outcome: OutcomeWithhold, Alert: alert}, nil
	}
	return &Disposition{Outcome: OutcomeDeliverFlagged, Alert: alert}, nil
}

func (p *Pipeline) applyRule(ctx context.Context, sessionID, messageID string, a evaluator.Assessment, rule *EscalationRule) (*Disposition, error) {
	severity := a.Severity
	outcome := OutcomeDeliverFlagged
	endSession := false

	switch rule.Action {
	case ActionBlock, ActionShutdown:
		// Blocked drafts always raise a critical-tagged alert.
		severity = SeverityCritical
		outcome = OutcomeBlock
		endSession = rule.Action == ActionShutdown
	case ActionEscalate:
		outcome = OutcomeWithhold
	case ActionFlag:
		if SeverityAtLeast(rule.Severity, severity) {
			severity = rule.Severity
		}
	}

	alert, err := p.alerts.Create(ctx, SafetyAlert{
		SessionID:  sessionID,
		MessageID:  messageID,
		Type:       a.Type,
		Severity:   severity,
		Confidence: a.Confidence,
	})
	if err != nil {
		return nil, err
	}

	if rule.Action == ActionEscalate {
		alert, err = p.alerts.Transition(ctx, alert.ID, StatusEscalated, "system", "rule: "+rule.Name)
		if err != nil {
			return nil, err
		}
	}

	return &Disposition{Outcome: outcome, Alert: alert, Rule: rule, EndSession: endSession}, nil
}

// ProcessTimeout handles an evaluator that never answered: the risk is
// unknown, so the draft is withheld behind a pending alert. Timeouts
// are never auto-approved regardless of configuration.
func (p *Pipeline) ProcessTimeout(ctx context.Context, sessionID, messageID string) (*Disposition, error) {
	alert, err := p.alerts.Create(ctx, SafetyAlert{
		SessionID: sessionID,
		MessageID: messageID,
		Type:      TypeUnknown,
		Severity:  SeverityHigh,
	})
	if err != nil {
		return nil, err
	}
	return &Disposition{Outcome: OutcomeWithhold, Alert: alert}, nil
}
