package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/state-hub/state-hub/internal/application/definition"
	"github.com/state-hub/state-hub/internal/application/orchestrator"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *definition.Registry
	logger   zerolog.Logger
}

func NewServer(orch *orchestrator.Orchestrator, registry *definition.Registry, logger zerolog.Logger) *Server {
	return &Server{
		orch:     orch,
		registry: registry,
		logger:   logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Route("/machines", func(r chi.Router) {
			r.Post("/", s.createMachine)
			r.Get("/", s.listMachines)
			r.Get("/{machineId}", s.getMachine)
			r.Delete("/{machineId}", s.deleteMachine)
			r.Post("/{machineId}/start", s.startMachine)
			r.Post("/{machineId}/stop", s.stopMachine)
			r.Post("/{machineId}/events", s.sendEvent)
		})

		r.Get("/metrics", s.getMetrics)
		r.Get("/health", s.getHealth)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
