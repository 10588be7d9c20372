package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/api/handlers"
	"github.com/paperlens/paperlens/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, sessionHandler *handlers.SessionHandler, queryHandler *handlers.QueryHandler, log *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/sessions", sessionHandler.ListSessions)
		api.Post("/sessions/upload", sessionHandler.UploadDocument)

		api.Route("/sessions/{id}", func(sr chi.Router) {
			// the event stream outlives the default timeout on purpose
			sr.With(middleware.Timeout(60 * time.Second)).Post("/process", sessionHandler.StartProcessing)
			sr.With(middleware.Timeout(60 * time.Second)).Get("/", sessionHandler.GetStatus)
			sr.Get("/events", sessionHandler.Events)
			sr.Get("/download", sessionHandler.Download)
			sr.Delete("/", sessionHandler.DeleteSession)

			sr.With(middleware.Timeout(60 * time.Second)).Post("/search", queryHandler.Search)
			sr.With(middleware.Timeout(5 * time.Minute)).Post("/summarize", queryHandler.Summarize)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", zap.Error(err))
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
