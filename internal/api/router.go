package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/benchhub/hub/internal/eventservice"
	"github.com/benchhub/hub/internal/federation"
	"github.com/benchhub/hub/internal/metrics"
	"github.com/benchhub/hub/internal/projectorchestrator"
	"github.com/benchhub/hub/internal/repositories"
	"github.com/benchhub/hub/internal/workflow"
	"github.com/benchhub/hub/internal/wsbus"

	"github.com/benchhub/hub/internal/bus"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It is
// populated once in cmd/hub/main.go after every component is wired and
// passed to NewRouter as a single struct, the same constructor shape the
// teacher uses to keep NewRouter's signature stable as dependencies grow.
type RouterConfig struct {
	Logger *zap.Logger

	Projects      repositories.ProjectRepository
	Agents        repositories.AgentRepository
	Workflows     repositories.WorkflowRepository
	Runs          repositories.WorkflowRunRepository
	Idempotency   repositories.IdempotencyRepository
	Notifications repositories.NotificationRepository

	Orchestrator *projectorchestrator.Orchestrator
	Engine       *workflow.Engine
	Events       eventservice.Service
	Catalog      *federation.Catalog
	Bus          *bus.Bus
	WSHub        *wsbus.Hub

	// APIKeys is the set of accepted bearer tokens for every route except
	// the WebSocket subscribe endpoint, whose only access control is its
	// subject filter (see wsbus).
	APIKeys map[string]struct{}
}

// NewRouter builds and returns the fully configured Chi router. All routes
// are registered under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", IdempotencyKeyHeader},
		AllowCredentials: false,
	}))

	r.Handle("/metrics", metrics.Handler())

	projectHandler := NewProjectHandler(cfg.Projects, cfg.Orchestrator, cfg.Logger)
	agentHandler := NewAgentHandler(cfg.Agents, cfg.Logger)
	workflowHandler := NewWorkflowHandler(cfg.Workflows, cfg.Runs, cfg.Engine, cfg.Logger)
	eventHandler := NewEventHandler(cfg.Events, cfg.Logger)
	federationHandler := NewFederationHandler(cfg.Catalog, cfg.Workflows, cfg.Engine, cfg.Logger)
	notificationHandler := NewNotificationHandler(cfg.Notifications, cfg.Logger)
	wsHandler := NewWSHandler(cfg.WSHub, cfg.Bus, cfg.Events, cfg.Logger)

	idempotent := Idempotent(cfg.Idempotency, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket subscribe — outside the Authenticate group and no API key
		// is checked; the subject filter is the only scoping (see wsbus).
		r.Get("/ws", wsHandler.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.APIKeys))

			// Projects
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.With(idempotent).Post("/", projectHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", projectHandler.GetByID)
					r.Patch("/", projectHandler.Update)
					r.Delete("/", projectHandler.Delete)
					r.With(idempotent).Post("/start", projectHandler.Start)
					r.With(idempotent).Post("/stop", projectHandler.Stop)
					r.With(idempotent).Post("/restart", projectHandler.Restart)
					r.Get("/status", projectHandler.Status)
				})
			})

			// Agents
			r.Route("/agents", func(r chi.Router) {
				r.Get("/", agentHandler.List)
				r.With(idempotent).Post("/", agentHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", agentHandler.GetByID)
					r.Patch("/", agentHandler.Update)
					r.Delete("/", agentHandler.Delete)
				})
			})

			// Workflows
			r.Route("/workflows", func(r chi.Router) {
				r.Get("/", workflowHandler.List)
				r.With(idempotent).Post("/", workflowHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", workflowHandler.GetByID)
					r.Patch("/", workflowHandler.Update)
					r.Delete("/", workflowHandler.Delete)
					r.With(idempotent).Post("/trigger", workflowHandler.Trigger)
					r.Get("/runs", workflowHandler.ListRuns)
				})
			})

			// Workflow runs
			r.Route("/runs/{id}", func(r chi.Router) {
				r.Get("/", workflowHandler.GetRun)
				r.With(idempotent).Post("/cancel", workflowHandler.CancelRun)
				r.Get("/nodes/{nodeId}/logs", workflowHandler.GetNodeRunLogs)
			})

			// Approvals
			r.Route("/approvals/{id}", func(r chi.Router) {
				r.With(idempotent).Post("/decide", workflowHandler.DecideApproval)
			})

			// Events
			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.Query)
				r.With(idempotent).Post("/", eventHandler.Publish)
			})

			// Federation
			r.Route("/federation", func(r chi.Router) {
				r.Route("/projects", func(r chi.Router) {
					r.Get("/", federationHandler.List)
					r.With(idempotent).Post("/", federationHandler.Register)
					r.Get("/{slug}", federationHandler.Get)
				})
				r.Post("/heartbeat", federationHandler.Heartbeat)
				r.Post("/webhook", federationHandler.Webhook)
			})

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.With(idempotent).Post("/{id}/read", notificationHandler.MarkAsRead)
			})
		})
	})

	return r
}
