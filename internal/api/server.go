package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/config"
	"github.com/kushiiitd05/IntelliScript/internal/metrics"
)

// Deps are the collaborators the HTTP layer talks to. Optional ones may be
// left nil; do not store typed nil pointers in them.
type Deps struct {
	DB       Pinger
	Redis    Pinger
	MQTT     ConnState
	Watcher  WatcherSource
	Queue    QueueSource
	STTModel string

	Sessions  SessionStore
	Submitter Submitter
	Progress  ProgressSource
	Cache     DocumentCache
	Answerer  Answerer
	Audio     AudioRemover

	OpenAPISpec []byte
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg, deps, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(splitOrigins(cfg.CORSOrigins)))

	// Unauthenticated
	health := NewHealthHandler(deps, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	if len(deps.OpenAPISpec) > 0 {
		r.Get("/api/v1/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(deps.OpenAPISpec)
		})
	}

	sh := NewSessionHandler(deps, cfg.MaxUploadMB<<20, log)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
		sh.Routes(r)
		r.With(RequireAuth(cfg.AuthToken)).Delete("/api/v1/sessions/{id}", sh.DeleteSession)
	})

	return r
}

func splitOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
