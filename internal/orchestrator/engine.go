// Package orchestrator runs the full turn for each inbound lead
// message: append, route, draft, evaluate, triage, respond. Every turn
// executes on its session's actor queue so turns for one session never
// interleave.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/events"
	"github.com/convoguard/convoguard/internal/fault"
	"github.com/convoguard/convoguard/internal/generator"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/persona"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

// DefaultFallback is delivered when a draft is blocked or generation
// fails outright.
const DefaultFallback = "Thanks for your message — let me connect you with a colleague who can help with that."

// Engine wires the stores and collaborators into the message flow.
type Engine struct {
	sessions *session.Store
	actors   *session.Actors
	personas *persona.Store
	router   *persona.Router
	config   *safetyconfig.Store
	gen      generator.Generator
	eval     evaluator.Evaluator
	pipeline *alerts.Pipeline
	agg      *metrics.Aggregator
	hub      *events.Hub
	webhooks *events.WebhookDispatcher
	fallback string
}

// Options carries the optional engine collaborators.
type Options struct {
	Hub      *events.Hub
	Webhooks *events.WebhookDispatcher
	Fallback string
}

// NewEngine creates an Engine. hub and webhooks in opts may be nil.
func NewEngine(
	sessions *session.Store,
	actors *session.Actors,
	personas *persona.Store,
	router *persona.Router,
	config *safetyconfig.Store,
	gen generator.Generator,
	eval evaluator.Evaluator,
	pipeline *alerts.Pipeline,
	agg *metrics.Aggregator,
	opts Options,
) *Engine {
	fallback := opts.Fallback
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Engine{
		sessions: sessions,
		actors:   actors,
		personas: personas,
		router:   router,
		config:   config,
		gen:      gen,
		eval:     eval,
		pipeline: pipeline,
		agg:      agg,
		hub:      opts.Hub,
		webhooks: opts.Webhooks,
		fallback: fallback,
	}
}

// TurnResult is the outcome of one orchestrated turn.
type TurnResult struct {
	SessionID     string                `json:"session_id"`
	Routing       *persona.Decision     `json:"routing"`
	LeadMessage   *session.Message      `json:"lead_message"`
	Reply         *session.Message      `json:"reply"`
	Outcome       alerts.Outcome        `json:"outcome"`
	Alert         *alerts.SafetyAlert   `json:"alert,omitempty"`
	ConfigVersion int64                 `json:"config_version"`
	SessionEnded  bool                  `json:"session_ended,omitempty"`
	Assessment    *evaluator.Assessment `json:"assessment,omitempty"`
}

// HandleMessage runs one full turn for an inbound lead message. The
// work executes on the session's actor queue; concurrent calls for the
// same session serialize in arrival order.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, content string) (*TurnResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", fault.ErrValidation)
	}

	var result *TurnResult
	err := e.actors.Do(ctx, sessionID, func(ctx context.Context) error {
		var err error
		result, err = e.runTurn(ctx, sessionID, content)
		return err
	})
	return result, err
}

func (e *Engine) runTurn(ctx context.Context, sessionID, content string) (*TurnResult, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, fault.ErrConflict)
	}

	// One config snapshot per turn: a mid-flight update never changes
	// this evaluation's thresholds.
	snap := e.config.Snapshot()
	cfg := snap.Config

	// Route before appending so the gate sees the previous turn's
	// final message and its unresolved alerts.
	decision, err := e.router.Route(ctx, sess, content, cfg)
	if err != nil {
		return nil, err
	}
	if decision.Switched {
		e.record(ctx, metrics.Event{Kind: metrics.KindPersonaSwitch, SessionID: sessionID})
		e.publish(events.Event{Kind: events.KindSessionUpdated, SessionID: sessionID, Payload: decision})
	}

	history, err := e.history(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	leadMsg, err := e.sessions.AppendMessage(ctx, sessionID, session.Message{
		Role:    session.RoleLead,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		SessionID:     sessionID,
		Routing:       decision,
		LeadMessage:   leadMsg,
		ConfigVersion: snap.Version,
	}
	e.record(ctx, metrics.Event{Kind: metrics.KindInteraction, SessionID: sessionID})

	p, err := e.personas.Get(ctx, decision.PersonaID)
	if err != nil {
		return nil, err
	}

	draft, err := e.gen.Generate(ctx, generator.Request{
		SessionID: sessionID,
		Persona: generator.Persona{
			ID:           p.ID,
			Name:         p.Name,
			Tone:         p.Tone,
			SystemPrompt: p.SystemPrompt,
		},
		Input:     content,
		History:   history,
		MaxLength: cfg.MaxResponseLength,
	})
	if err != nil {
		// Generation already retried once; degrade to the fallback.
		log.Printf("orchestrator: generation failed for session %s: %v", sessionID, err)
		reply, err := e.sessions.AppendMessage(ctx, sessionID, session.Message{
			Role:        session.RoleAssistant,
			Content:     e.fallback,
			SafetyFlags: []string{"generation_failed"},
		})
		if err != nil {
			return nil, err
		}
		result.Reply = reply
		result.Outcome = alerts.OutcomeDeliver
		return result, nil
	}
	if cfg.MaxResponseLength > 0 && len(draft.Content) > cfg.MaxResponseLength {
		draft.Content = draft.Content[:cfg.MaxResponseLength]
	}

	// The reply id is fixed up front so the alert raised by the
	// pipeline can reference the message it withholds or replaces.
	replyID := uuid.New().String()

	assessment, evalErr := e.eval.Evaluate(ctx, evaluator.Request{
		Draft:     draft.Content,
		PersonaID: p.ID,
		LeadInput: content,
		History:   evalHistory(history),
	})

	var disp *alerts.Disposition
	switch {
	case evalErr == nil:
		result.Assessment = assessment
		disp, err = e.pipeline.Process(ctx, sessionID, replyID, *assessment, cfg)
	case errors.Is(evalErr, fault.ErrUpstreamTimeout):
		log.Printf("orchestrator: evaluator timed out for session %s", sessionID)
		disp, err = e.pipeline.ProcessTimeout(ctx, sessionID, replyID)
	default:
		// Any evaluator failure is unknown risk; same cautious path.
		log.Printf("orchestrator: evaluation failed for session %s: %v", sessionID, evalErr)
		disp, err = e.pipeline.ProcessTimeout(ctx, sessionID, replyID)
	}
	if err != nil {
		return nil, err
	}
	result.Outcome = disp.Outcome
	result.Alert = disp.Alert

	reply, err := e.sessions.AppendMessage(ctx, sessionID, e.composeReply(replyID, draft, disp))
	if err != nil {
		return nil, err
	}
	result.Reply = reply

	e.recordDisposition(ctx, sessionID, assessment, disp)

	if disp.EndSession {
		if _, err := e.sessions.End(ctx, sessionID, session.StatusReviewed); err != nil {
			return nil, err
		}
		result.SessionEnded = true
		e.publish(events.Event{Kind: events.KindSessionUpdated, SessionID: sessionID})
	}

	return result, nil
}

func (e *Engine) composeReply(replyID string, draft *generator.Response, disp *alerts.Disposition) session.Message {
	msg := session.Message{
		ID:         replyID,
		Role:       session.RoleAssistant,
		Content:    draft.Content,
		Confidence: draft.Confidence,
	}
	alertType := ""
	if disp.Alert != nil {
		alertType = disp.Alert.Type
	}

	switch disp.Outcome {
	case alerts.OutcomeDeliverFlagged:
		msg.SafetyFlags = []string{"flagged", alertType}
	case alerts.OutcomeWithhold:
		msg.Role = session.RoleSystem
		msg.Content = "Response withheld pending safety review."
		msg.Confidence = 0
		msg.SafetyFlags = []string{"withheld", alertType}
	case alerts.OutcomeBlock:
		msg.Content = e.fallback
		msg.Confidence = 0
		msg.SafetyFlags = []string{"blocked", alertType}
	}
	return msg
}

func (e *Engine) recordDisposition(ctx context.Context, sessionID string, assessment *evaluator.Assessment, disp *alerts.Disposition) {
	if disp.Alert != nil {
		kind := metrics.KindAlertCreated
		if disp.Alert.Status == alerts.StatusApproved {
			kind = metrics.KindAlertAutoApproved
		}
		e.record(ctx, metrics.Event{
			Kind:      kind,
			SessionID: sessionID,
			AlertID:   disp.Alert.ID,
			AlertType: disp.Alert.Type,
			Severity:  disp.Alert.Severity,
		})
		if disp.Alert.Status == alerts.StatusEscalated {
			e.record(ctx, metrics.Event{Kind: metrics.KindAlertEscalated, SessionID: sessionID, AlertID: disp.Alert.ID})
		}
		e.publish(events.Event{Kind: events.KindAlertCreated, SessionID: sessionID, Payload: disp.Alert})
		if e.webhooks != nil {
			e.webhooks.Dispatch(ctx, *disp.Alert)
		}
	}

	if disp.Outcome == alerts.OutcomeBlock {
		e.record(ctx, metrics.Event{Kind: metrics.KindResponseBlocked, SessionID: sessionID})
		if assessment != nil && assessment.Type == evaluator.TypeJailbreak {
			e.record(ctx, metrics.Event{Kind: metrics.KindJailbreakBlocked, SessionID: sessionID})
		}
	}
}

func (e *Engine) history(ctx context.Context, sessionID string) ([]generator.ContextMessage, error) {
	msgs, err := e.sessions.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]generator.ContextMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, generator.ContextMessage{Role: string(m.Role), Content: m.Content})
	}
	return history, nil
}

func evalHistory(history []generator.ContextMessage) []evaluator.ContextMessage {
	out := make([]evaluator.ContextMessage, len(history))
	for i, m := range history {
		out[i] = evaluator.ContextMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (e *Engine) record(ctx context.Context, ev metrics.Event) {
	if e.agg == nil {
		return
	}
	if err := e.agg.Record(ctx, ev); err != nil {
		log.Printf("orchestrator: recording metric event: %v", err)
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.hub != nil {
		e.hub.Publish(ev)
	}
}
