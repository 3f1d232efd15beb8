package persona

import (
	"context"
	"errors"
	"fmt"

	"github.com/convoguard/convoguard/internal/fault"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

// Classifier assigns messages to intent categories. Implemented by
// IntentClassifier; nil disables semantic routing.
type Classifier interface {
	Classify(ctx context.Context, message string) (string, float32, error)
}

// AlertGate reports whether a session's latest message still carries
// unresolved safety alerts. While it does, automatic switching is
// suspended so routing cannot compound an unsafe state.
type AlertGate interface {
	HasUnresolved(ctx context.Context, sessionID string) (bool, error)
}

// Router decides the responding persona for each inbound message.
type Router struct {
	personas   *Store
	sessions   *session.Store
	classifier Classifier
	gate       AlertGate
}

// NewRouter creates a Router. classifier and gate may be nil.
func NewRouter(personas *Store, sessions *session.Store, classifier Classifier, gate AlertGate) *Router {
	return &Router{personas: personas, sessions: sessions, classifier: classifier, gate: gate}
}

// Route evaluates triggers against the inbound message and applies an
// automatic persona switch when one fires. The caller passes the config
// snapshot taken when the message was received so a mid-flight config
// update cannot change the outcome.
//
// Policy rejections are not errors on this path: the failed attempt is
// audited and the session continues with its current persona.
func (r *Router) Route(ctx context.Context, sess *session.Session, message string, cfg safetyconfig.SafetyConfig) (*Decision, error) {
	decision := &Decision{PersonaID: sess.CurrentPersonaID}

	if !cfg.DynamicSwitchEnabled {
		return decision, nil
	}
	if r.gate != nil {
		unresolved, err := r.gate.HasUnresolved(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if unresolved {
			decision.Reason = "unresolved safety alerts"
			return decision, nil
		}
	}

	personas, err := r.personas.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Persona, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}

	matched, intent, err := r.firstMatch(ctx, collectTriggers(personas), message)
	if err != nil {
		return nil, err
	}
	decision.Intent = intent
	if matched == nil || matched.target == sess.CurrentPersonaID {
		return decision, nil
	}

	target, ok := byID[matched.target]
	if !ok || !target.Dynamic {
		return decision, nil
	}

	reason := switchReason(matched.trigger, intent)
	if !sess.PersonaAllowed(target.ID) {
		_, err := r.sessions.RecordFailedSwitch(ctx, sess.ID, session.PersonaSwitch{
			FromPersona: sess.CurrentPersonaID,
			ToPersona:   target.ID,
			Reason:      reason + " (outside safe persona list)",
			TriggeredBy: session.TriggeredAutomatic,
		})
		if err != nil {
			return nil, err
		}
		decision.Rejected = true
		return decision, nil
	}

	sw, err := r.sessions.RecordSwitch(ctx, sess.ID, session.PersonaSwitch{
		FromPersona: sess.CurrentPersonaID,
		ToPersona:   target.ID,
		Reason:      reason,
		TriggeredBy: session.TriggeredAutomatic,
	})
	if errors.Is(err, fault.ErrConflict) {
		// Lost the race to another mutation; keep the current persona.
		return decision, nil
	}
	if err != nil {
		return nil, err
	}

	sess.CurrentPersonaID = sw.ToPersona
	decision.PersonaID = sw.ToPersona
	decision.Switched = true
	decision.Reason = sw.Reason
	return decision, nil
}

// firstMatch walks candidates in priority order and returns the first
// one whose patterns or intent category matches. The classifier runs at
// most once per message.
func (r *Router) firstMatch(ctx context.Context, cands []candidate, message string) (*candidate, string, error) {
	var (
		intent     string
		classified bool
	)
	for i := range cands {
		c := &cands[i]
		if matchesPatterns(c.trigger, message) {
			return c, intent, nil
		}
		if c.trigger.Intent == "" || r.classifier == nil {
			continue
		}
		if !classified {
			var err error
			intent, _, err = r.classifier.Classify(ctx, message)
			if err != nil {
				return nil, "", fmt.Errorf("classifying intent: %w", err)
			}
			classified = true
		}
		if intent != "" && intent == c.trigger.Intent {
			return c, intent, nil
		}
	}
	return nil, intent, nil
}

// ManualSwitch applies a staff-requested persona change immediately,
// bypassing trigger evaluation. The safe persona list still applies;
// a rejected attempt is audited and surfaced as PolicyViolation.
func (r *Router) ManualSwitch(ctx context.Context, sessionID, toPersona, reason, reviewer string) (*session.PersonaSwitch, error) {
	if toPersona == "" {
		return nil, fmt.Errorf("%w: to_persona is required", fault.ErrValidation)
	}
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := r.personas.Get(ctx, toPersona); err != nil {
		return nil, err
	}

	if reviewer != "" {
		reason = fmt.Sprintf("%s [%s]", reason, reviewer)
	}

	if !sess.PersonaAllowed(toPersona) {
		if _, err := r.sessions.RecordFailedSwitch(ctx, sessionID, session.PersonaSwitch{
			FromPersona: sess.CurrentPersonaID,
			ToPersona:   toPersona,
			Reason:      reason + " (outside safe persona list)",
			TriggeredBy: session.TriggeredManual,
		}); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("persona %s not in session safe list: %w", toPersona, fault.ErrPolicyViolation)
	}

	return r.sessions.RecordSwitch(ctx, sessionID, session.PersonaSwitch{
		FromPersona: sess.CurrentPersonaID,
		ToPersona:   toPersona,
		Reason:      reason,
		TriggeredBy: session.TriggeredManual,
	})
}

func switchReason(t Trigger, intent string) string {
	if intent != "" && t.Intent == intent {
		return "intent: " + intent
	}
	if t.Intent != "" {
		return "trigger: " + t.Intent
	}
	return "keyword trigger"
}
