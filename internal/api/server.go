package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MikeSquared-Agency/sensei/internal/classifier"
	"github.com/MikeSquared-Agency/sensei/internal/conversation"
	"github.com/MikeSquared-Agency/sensei/internal/synchronizer"
)

// Pinger is implemented by gateways that can check their backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BatchRunner runs one classification batch.
type BatchRunner interface {
	RunBatch(ctx context.Context) (classifier.Result, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	gw      conversation.Gateway
	syncer  *synchronizer.Synchronizer
	batches BatchRunner
	logger  *slog.Logger
	now     func() time.Time
	http    *http.Server
}

func NewServer(port int, apiToken string, corsOrigins []string, gw conversation.Gateway, batches BatchRunner, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s := &Server{
		router:  router,
		port:    port,
		gw:      gw,
		syncer:  synchronizer.New(gw, logger),
		batches: batches,
		logger:  logger,
		now:     time.Now,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/sensei/status", s.status)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/api/v1/sessions/sync", s.syncSessions)
		r.Post("/api/v1/sessions/classify", s.classifySessions)
		r.Post("/api/v1/sessions/{id}/read", s.markRead)
		r.Get("/api/v1/analytics/overview", s.overview)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// health reports 503 when the gateway's database does not answer a ping.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.gw.(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unavailable",
				"database": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "sensei",
		"status": "active",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
