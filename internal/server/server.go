package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"webwrap/internal/artifact"
	"webwrap/internal/build"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Rate limiting - requests per minute
	GlobalRateLimit  = 60 // Global rate limit per minute
	TriggerRateLimit = 6  // Build trigger rate limit per minute
)

// Server is the HTTP front of the build lifecycle service.
type Server struct {
	Service        *build.Service
	Artifacts      *artifact.FS
	Signer         *artifact.Signer
	CallbackSecret string
	Logger         *slog.Logger
	TestMode       bool
}

// NewServer creates a new server instance.
func NewServer(svc *build.Service, artifacts *artifact.FS, signer *artifact.Signer, callbackSecret string, logger *slog.Logger, testMode bool) *Server {
	return &Server{
		Service:        svc,
		Artifacts:      artifacts,
		Signer:         signer,
		CallbackSecret: callbackSecret,
		Logger:         logger,
		TestMode:       testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	// Rate limiting middleware (only if not in test mode)
	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, time.Minute, "global", s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)

	r.Route("/builds", func(r chi.Router) {
		r.Get("/", s.HandleListBuilds)
		if !s.TestMode {
			r.With(NewRateLimitMiddleware(TriggerRateLimit, time.Minute, "trigger", s.Logger)).
				Post("/trigger", s.HandleTriggerBuild)
		} else {
			r.Post("/trigger", s.HandleTriggerBuild)
		}
		r.Get("/{buildID}", s.HandleGetBuild)
		r.Delete("/{buildID}", s.HandleDeleteBuild)
		r.Get("/{buildID}/download", s.HandleDownload)
	})

	r.Post("/internal/update-build-status", s.HandleStatusCallback)
	r.Get("/artifacts/*", s.HandleArtifact)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}
