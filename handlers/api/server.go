package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/config"
	"github.com/nijaru/reelsmith/errors"
	"github.com/nijaru/reelsmith/middleware"
	"github.com/nijaru/reelsmith/services/generation"
	"github.com/nijaru/reelsmith/services/recording"
	"github.com/nijaru/reelsmith/validation"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	generation *GenerationHandler
	recording  *RecordingHandler
	outcomes   *OutcomeSocket
	db         Pinger
	filesDir   string
	config     *config.Config
	logger     *logrus.Logger
	server     *http.Server
	startTime  time.Time
}

type ServerOption func(*Server)

func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithLogger must come before WithServices so the handlers share it.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithServices(genSvc generation.Service, recSvc recording.Service) ServerOption {
	return func(s *Server) {
		validator := validation.NewValidator(s.config)
		s.generation = NewGenerationHandler(genSvc, validator, s.logger)
		s.recording = NewRecordingHandler(recSvc, validator, s.config.Recording.MaxUploadBytes, s.logger)
		s.outcomes = NewOutcomeSocket(recSvc, s.config.CORS.AllowedOrigins, s.logger)
	}
}

func WithDB(db Pinger) ServerOption {
	return func(s *Server) {
		s.db = db
	}
}

// WithFiles serves a local storage directory under /files/.
func WithFiles(dir string) ServerOption {
	return func(s *Server) {
		s.filesDir = dir
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.addAPIRoutes(mux)

	if s.filesDir != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.filesDir))))
	}

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.middleware(mux)
}

func (s *Server) addAPIRoutes(mux *http.ServeMux) {
	const prefix = "/api"

	if s.generation != nil {
		// Streams are long-lived and stay outside the timeout.
		mux.HandleFunc("POST "+prefix+"/generate", s.generation.HandleGenerate)
		mux.HandleFunc("POST "+prefix+"/generate/continue", s.generation.HandleContinue)
		mux.Handle("POST "+prefix+"/script/edit", s.timeout(s.generation.HandleEditScript))
		mux.Handle("GET "+prefix+"/runs/{id}", s.timeout(s.generation.HandleGetRun))
	}

	if s.recording != nil {
		mux.HandleFunc("POST "+prefix+"/recordings", s.recording.HandleUpload)
		mux.Handle("GET "+prefix+"/recordings/{id}/status", s.timeout(s.recording.HandleStatus))
		mux.Handle("PUT "+prefix+"/recordings/{id}/zoom-points", s.timeout(s.recording.HandleAddZoomPoint))
		mux.Handle("DELETE "+prefix+"/recordings/{id}/zoom-points/{index}", s.timeout(s.recording.HandleRemoveZoomPoint))
		mux.HandleFunc("GET "+prefix+"/recordings/ws", s.outcomes.HandleOutcomes)
	}
}

func (s *Server) timeout(h http.HandlerFunc) http.Handler {
	if !s.config.Middleware.EnableTimeout || s.config.RequestTimeout <= 0 {
		return h
	}
	return middleware.Timeout(s.config.RequestTimeout)(h)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	mw := s.config.Middleware
	var middlewares []func(http.Handler) http.Handler

	if mw.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if mw.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if mw.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if mw.EnableCORS {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if mw.EnableRateLimit && s.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, limiter.Middleware)
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleHealth"

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			respondError(w, r, errors.E(op, err, "Database unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
