// Package server assembles the stores, collaborators and HTTP surface
// into one process.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/audit"
	"github.com/convoguard/convoguard/internal/db"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/events"
	"github.com/convoguard/convoguard/internal/generator"
	"github.com/convoguard/convoguard/internal/idempotency"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/orchestrator"
	"github.com/convoguard/convoguard/internal/persona"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

// Config holds server configuration.
type Config struct {
	Port            int
	AllowAll        bool // allow all CORS origins (dev mode)
	Fallback        string
	WebhookURLs     []string
	WebhookSeverity string // minimum severity dispatched to webhooks
}

// Server is the orchestration and triage HTTP server.
type Server struct {
	cfg        Config
	db         *db.DB
	actors     *session.Actors
	hub        *events.Hub
	agg        *metrics.Aggregator
	audit      *audit.Store
	router     chi.Router
	httpServer *http.Server
}

// New assembles a Server: stores over the shared database, the actor
// registry, the engine, and all feature routes.
func New(ctx context.Context, cfg Config, database *db.DB, gen generator.Generator, eval evaluator.Evaluator, classifier persona.Classifier) (*Server, error) {
	sessions := session.NewStore(database)
	personas := persona.NewStore(database)
	alertStore := alerts.NewStore(database)
	ruleStore := alerts.NewRuleStore(database)
	idem := idempotency.NewStore(database)
	auditLog := audit.NewStore(database)

	cfgStore, err := safetyconfig.NewStore(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("initializing safety config: %w", err)
	}
	agg, err := metrics.NewAggregator(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	actors := session.NewActors()
	hub := events.NewHub()
	webhooks := events.NewWebhookDispatcher(cfg.WebhookURLs, cfg.WebhookSeverity)
	personaRouter := persona.NewRouter(personas, sessions, classifier, alertStore)
	pipeline := alerts.NewPipeline(alertStore, ruleStore)

	engine := orchestrator.NewEngine(sessions, actors, personas, personaRouter, cfgStore, gen, eval, pipeline, agg, orchestrator.Options{
		Hub:      hub,
		Webhooks: webhooks,
		Fallback: cfg.Fallback,
	})

	s := &Server{
		cfg:    cfg,
		db:     database,
		actors: actors,
		hub:    hub,
		agg:    agg,
		audit:  auditLog,
	}

	r := s.buildRouter()
	r.Group(func(r chi.Router) {
		r.Use(idempotency.Middleware(idem))

		session.RegisterRoutes(r, sessions, actors, func(ctx context.Context, sess *session.Session) {
			if err := auditLog.Log(ctx, audit.Entry{
				Action:    audit.ActionSessionEnded,
				Subject:   audit.SubjectSession,
				SubjectID: sess.ID,
				Detail:    string(sess.Status),
			}); err != nil {
				log.Printf("server: recording audit entry: %v", err)
			}
			hub.Publish(events.Event{Kind: events.KindSessionUpdated, SessionID: sess.ID, Payload: sess})
		})
		persona.RegisterRoutes(r, personas, personaRouter, actors)
		orchestrator.RegisterRoutes(r, engine)
		alerts.RegisterRoutes(r, alertStore, ruleStore, s.alertHook())
		safetyconfig.RegisterRoutes(r, cfgStore, s.configHook())
		metrics.RegisterRoutes(r, agg, cfgStore)
		audit.RegisterRoutes(r, auditLog)
	})
	r.Get("/api/events/ws", hub.HandleWebSocket)

	s.router = r
	return s, nil
}

// alertHook records metric events, audit entries and push updates when
// staff change an alert's status.
func (s *Server) alertHook() alerts.TransitionHook {
	kinds := map[alerts.Status]metrics.Kind{
		alerts.StatusReviewed:  metrics.KindAlertReviewed,
		alerts.StatusApproved:  metrics.KindAlertApproved,
		alerts.StatusRejected:  metrics.KindAlertRejected,
		alerts.StatusEscalated: metrics.KindAlertEscalated,
	}
	actions := map[alerts.Status]audit.Action{
		alerts.StatusReviewed:  audit.ActionAlertReviewed,
		alerts.StatusApproved:  audit.ActionAlertApproved,
		alerts.StatusRejected:  audit.ActionAlertRejected,
		alerts.StatusEscalated: audit.ActionAlertEscalated,
	}
	return func(ctx context.Context, a *alerts.SafetyAlert) {
		if kind, ok := kinds[a.Status]; ok {
			if err := s.agg.Record(ctx, metrics.Event{
				Kind:      kind,
				SessionID: a.SessionID,
				AlertID:   a.ID,
				AlertType: a.Type,
				Severity:  a.Severity,
			}); err != nil {
				log.Printf("server: recording alert transition: %v", err)
			}
		}
		if action, ok := actions[a.Status]; ok {
			if err := s.audit.Log(ctx, audit.Entry{
				Actor:     a.ReviewedBy,
				Action:    action,
				Subject:   audit.SubjectAlert,
				SubjectID: a.ID,
				Detail:    a.ReviewNotes,
			}); err != nil {
				log.Printf("server: recording audit entry: %v", err)
			}
		}
		s.hub.Publish(events.Event{Kind: events.KindAlertUpdated, SessionID: a.SessionID, Payload: a})
	}
}

// configHook audits safety config updates and pushes the new snapshot.
func (s *Server) configHook() safetyconfig.UpdateHook {
	return func(snap safetyconfig.Snapshot) {
		err := s.audit.Log(context.Background(), audit.Entry{
			Actor:     snap.UpdatedBy,
			Action:    audit.ActionConfigUpdated,
			Subject:   audit.SubjectConfig,
			SubjectID: fmt.Sprintf("%d", snap.Version),
		})
		if err != nil {
			log.Printf("server: recording audit entry: %v", err)
		}
		s.hub.Publish(events.Event{Kind: events.KindConfigUpdated, Payload: snap})
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotency.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("convoguard server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server and drains session queues.
func (s *Server) Shutdown(ctx context.Context) error {
	s.actors.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
