package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appAuth "github.com/session-hub/session-hub/internal/application/auth"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc             *appAuth.Service
	gatherer            prometheus.Gatherer
	sessionCookieName   string
	sessionCookieSecure bool
	logger              zerolog.Logger
}

// NewServer creates the HTTP server. A nil gatherer disables /metrics.
func NewServer(
	authSvc *appAuth.Service,
	gatherer prometheus.Gatherer,
	sessionCookieName string,
	sessionCookieSecure bool,
	logger zerolog.Logger,
) *Server {
	return &Server{
		authSvc:             authSvc,
		gatherer:            gatherer,
		sessionCookieName:   sessionCookieName,
		sessionCookieSecure: sessionCookieSecure,
		logger:              logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Get("/me", s.me)
			r.Post("/logout", s.logout)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/logout-all", s.logoutAll)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

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

func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Server error.")
}

// decodeBody ignores fields the request type does not declare.
func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
