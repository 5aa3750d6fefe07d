// Package server exposes the browser service over HTTP and WebSocket. Both
// transports are thin: they decode requests, call the service, and render
// uniform success/error payloads.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
	"github.com/xkilldash9x/browserd/internal/config"
)

// json is the codec for every payload both transports touch.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BrowserService is the surface the transports require. The concrete
// implementation is browser.Service; tests substitute mocks.
type BrowserService interface {
	CreateSession(ctx context.Context, req schemas.CreateSessionRequest) (*schemas.CreateSessionResult, error)
	Navigate(ctx context.Context, sessionID, url string) (*schemas.NavigationResult, error)
	PerformAction(ctx context.Context, sessionID string, action schemas.BrowserAction) (*schemas.ActionResult, error)
	GetPageInfo(ctx context.Context, sessionID string) (*schemas.PageInfo, error)
	FindAndClickLink(ctx context.Context, sessionID, description string) (*schemas.LinkClickResult, error)
	CloseSession(sessionID string) bool
	ActiveSessions() []schemas.SessionInfo
	SessionByID(sessionID string) (schemas.SessionInfo, bool)
}

// Server hosts the REST API, the WebSocket control channel, and the
// operational endpoints.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	svc    BrowserService
	http   *http.Server
}

// New builds the server with its routes wired. Call Start to serve.
func New(cfg *config.Config, svc BrowserService, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		svc:    svc,
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleCloseSession)
				r.Post("/navigate", s.handleNavigate)
				r.Post("/actions", s.handleAction)
				r.Get("/page", s.handleGetPage)
				r.Post("/links/click", s.handleFindAndClickLink)
			})
		})
	})
	return r
}

// Start serves until ListenAndServe returns. It blocks; run it in its own
// goroutine and stop it with Shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Server.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
