// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"sfportal/internal/adapter/storage"
	"sfportal/internal/config"
	"sfportal/internal/server/handlers"
	"sfportal/internal/service/explorer"
	"sfportal/internal/service/stats"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	natsConn *nats.Conn,
	incidentStore *storage.IncidentStore,
	statsService *stats.Service,
	explorerManager *explorer.Manager,
	logger *zap.Logger,
) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Create handler dependencies
	incidentHandler := handlers.NewIncidentHandler(incidentStore)
	statsHandler := handlers.NewStatsHandler(statsService)
	fireHandler := handlers.NewFireHandler(statsService)
	explorerHandler := handlers.NewExplorerHandler(explorerManager)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		// Combined incident timeline
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/timeline", incidentHandler.GetTimeline)
		})

		// Citywide analytics
		r.Route("/stats", func(r chi.Router) {
			r.Get("/neighborhoods", statsHandler.GetTopNeighborhoods)
			r.Get("/danger", statsHandler.GetDangerAnalysis)
			r.Get("/breakdown", statsHandler.GetTypeBreakdown)
			r.Get("/monthly", statsHandler.GetMonthlyIncidents)
			r.Get("/crime-categories", statsHandler.GetTopCrimeCategories)
		})

		// Fire department analytics
		r.Route("/fire", func(r chi.Router) {
			r.Get("/situations", fireHandler.GetSituationActions)
			r.Get("/inspections", fireHandler.GetIncompleteInspections)
			r.Get("/neighborhoods", fireHandler.GetTopFireNeighborhoods)
			r.Get("/response-times", fireHandler.GetResponseTimes)
		})

		// Explorer sessions
		r.Route("/explorer/sessions", func(r chi.Router) {
			r.Post("/", explorerHandler.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", explorerHandler.GetSession)
				r.Delete("/", explorerHandler.DeleteSession)
				r.Put("/filters", explorerHandler.SetFilters)
				r.Post("/refresh", explorerHandler.RefreshSession)
			})
		})
	})

	// WebSocket endpoint for live view snapshots
	router.Get("/ws/explorer/{id}", handlers.ExplorerWebSocketHandler(explorerManager, natsConn, logger))

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
