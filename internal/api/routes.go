package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/co-rwsl/internal/config"
	"github.com/yegors/co-rwsl/internal/monitor"
	"github.com/yegors/co-rwsl/internal/simulation"
	"github.com/yegors/co-rwsl/internal/storage/sqlite"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(monitorService *monitor.Service, history *sqlite.EventStorage, simulationService *simulation.Service, wsServer *websocket.Server, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(monitorService, history, simulationService, wsServer, cfg, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		// Current decision
		router.Get("/lights", r.handler.GetLights)
		router.Get("/lights/{id}", r.handler.GetLight)
		router.Get("/conflicts", r.handler.GetConflicts)
		router.Get("/occupancy", r.handler.GetOccupancy)

		// Engine state
		router.Get("/health", r.handler.GetHealth)
		router.Get("/metrics", r.handler.GetMetrics)
		router.Get("/airport", r.handler.GetAirport)
		router.Get("/config", r.handler.GetConfig)

		// Stored history
		router.Get("/history/conflicts", r.handler.GetConflictHistory)
		router.Get("/history/lights/{id}", r.handler.GetLightHistory)
		router.Get("/history/health", r.handler.GetHealthHistory)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Simulation routes
		router.Post("/simulation/aircraft", r.handler.CreateSimulatedAircraft)
		router.Put("/simulation/aircraft/{hex}/controls", r.handler.UpdateSimulationControls)
		router.Delete("/simulation/aircraft/{hex}", r.handler.RemoveSimulatedAircraft)
		router.Get("/simulation/aircraft", r.handler.GetSimulatedAircraft)
	})

	if r.config.Server.StaticFilesDir != "" {
		router.Handle("/*", NewStaticFileHandler(r.config.Server.StaticFilesDir, r.logger))
	}

	return router
}
