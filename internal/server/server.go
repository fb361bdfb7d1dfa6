// server.go - Router, dependency set and lifecycle of the HTTP server.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"secure-transfer/internal/audit"
	"secure-transfer/internal/auth"
	"secure-transfer/internal/kv"
	"secure-transfer/internal/security"
	"secure-transfer/internal/storage"
)

// Config is the HTTP-facing part of the service configuration.
type Config struct {
	Addr       string // e.g. ":8080"
	TrustProxy bool
	Version    string
	Commit     string
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Auth       auth.Authenticator
	Limiter    *security.RateLimiter // nil disables rate limiting
	SignedURLs *security.SignedURLs
	Files      *storage.FileStore
	Validator  *storage.Validator
	KV         kv.Store
	Audit      *audit.Logger
	AuditDB    Pinger // optional
}

type Server struct {
	cfg        Config
	deps       Deps
	metrics    *Metrics
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("server: authenticator is required")
	case deps.SignedURLs == nil, deps.Files == nil, deps.Validator == nil, deps.KV == nil:
		return nil, errors.New("server: signed urls, file store, validator and kv store are required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(nil, audit.Options{})
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: NewMetrics(cfg.Version, cfg.Commit),
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", s.HandleHealth)
	r.Get("/ready", s.HandleReady)
	r.Get("/live", s.HandleLive)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/secure-transfer", func(r chi.Router) {
		r.Get("/signed-download", s.handleSignedDownload)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.rateLimit)

			r.Post("/upload", s.handleUpload)
			r.Get("/download/{id}", s.handleDownload)
			r.Get("/request-url/{id}", s.handleRequestURL)
			r.Get("/status/{id}", s.handleStatus)
			r.Delete("/files/{id}", s.handleDelete)
		})
	})
	return r
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// recordEvent stamps request attributes onto e and writes it to the audit log.
func (s *Server) recordEvent(r *http.Request, e audit.Entry) {
	e.RequestID = RequestIDFromContext(r.Context())
	e.UserAgent = r.UserAgent()
	s.deps.Audit.Record(r.Context(), e)
}
