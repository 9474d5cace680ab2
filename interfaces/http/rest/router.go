package rest

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	commandbus "curricula/application/commands/bus"
	querybus "curricula/application/queries/bus"
	"curricula/infrastructure/config"
	"curricula/interfaces/http/rest/handlers"
	"curricula/interfaces/http/rest/middleware"
	"curricula/pkg/errors"
	"curricula/pkg/observability"
)

// RoleIngest is required for graph delta submission and weight adaptation.
const RoleIngest = "ingest"

// Router creates and configures the HTTP router
type Router struct {
	cfg        *config.Config
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	metrics    *observability.Metrics
	authConfig middleware.AuthMiddlewareConfig
	logger     *zap.Logger
	ready      atomic.Bool
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	commandBus *commandbus.CommandBus,
	queryBus *querybus.QueryBus,
	errHandler *errors.ErrorHandler,
	metrics *observability.Metrics,
	authConfig middleware.AuthMiddlewareConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:        cfg,
		commandBus: commandBus,
		queryBus:   queryBus,
		errHandler: errHandler,
		metrics:    metrics,
		authConfig: authConfig,
		logger:     logger,
	}
}

// SetReady marks the engine as recovered and able to serve traffic.
func (rt *Router) SetReady() {
	rt.ready.Store(true)
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.EnableMetrics {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.authConfig))

		graphHandler := handlers.NewGraphHandler(rt.commandBus, rt.queryBus, rt.errHandler, rt.logger)
		r.Get("/graph", graphHandler.GetGraph)
		r.With(middleware.RequireRole(RoleIngest)).Post("/graph/delta", graphHandler.SubmitDelta)

		assessmentHandler := handlers.NewAssessmentHandler(rt.commandBus, rt.errHandler, rt.logger)
		r.Post("/assessments", assessmentHandler.RecordAssessment)

		plannerHandler := handlers.NewPlannerHandler(rt.commandBus, rt.queryBus, rt.errHandler, rt.logger)
		r.Route("/learners/{learnerID}", func(r chi.Router) {
			r.Get("/next-action", plannerHandler.GetNextAction)
			r.Get("/curriculum", plannerHandler.GetCurriculum)
			r.Get("/progress", plannerHandler.GetProgress)
			r.Get("/history", plannerHandler.GetHistory)
			r.Post("/validate", plannerHandler.ValidateCurriculum)
			r.Post("/trajectory/close", plannerHandler.CloseTrajectory)
		})

		weightsHandler := handlers.NewWeightsHandler(rt.commandBus, rt.queryBus, rt.errHandler, rt.logger)
		r.Get("/weights", weightsHandler.GetWeights)
		r.With(middleware.RequireRole(RoleIngest)).Post("/weights/adapt", weightsHandler.AdaptWeights)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports whether log replay has finished
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !rt.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"recovering"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
