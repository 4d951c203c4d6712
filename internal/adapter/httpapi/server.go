// Package httpapi exposes the chat service over a small JSON/multipart API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"planit/internal/domain"
	"planit/internal/infra/config"
	"planit/internal/infra/middleware"
	"planit/internal/usecase"
)

// ChatService is the use-case surface the handlers drive.
type ChatService interface {
	SendMessage(ctx context.Context, userID, text string, files []domain.Blob) (string, error)
	History(ctx context.Context, userID string) ([]domain.Turn, error)
	ClearHistory(ctx context.Context, userID string) error
	ImportCourse(ctx context.Context, userID string, req usecase.ImportRequest) (*usecase.CourseImport, error)
}

// ServerDeps holds the server's collaborators and settings.
type ServerDeps struct {
	Chat     ChatService
	Auth     domain.Authenticator
	Ping     func(ctx context.Context) error // optional readiness probe
	Server   config.ServerConfig
	Security config.SecurityConfig
	// ExtractionEnabled gates POST /v1/courses/extract.
	ExtractionEnabled bool
	Logger            *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	deps    ServerDeps
	limiter *middleware.RateLimiter
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(deps ServerDeps) *Server {
	s := &Server{deps: deps}
	if deps.Security.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(deps.Security.RateLimit, deps.Logger)
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /v1/chat/messages", s.authenticated(s.handleSendMessage))
	mux.Handle("GET /v1/chat/history", s.authenticated(s.handleHistory))
	mux.Handle("DELETE /v1/chat/history", s.authenticated(s.handleClearHistory))
	mux.Handle("POST /v1/courses/extract", s.authenticated(s.handleExtractCourse))

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.deps.Security.Headers {
		h = middleware.SecurityHeaders(h)
	}
	return s.logRequests(h)
}

// Start serves on the configured address until ctx is cancelled, then shuts
// down gracefully within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.deps.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.deps.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.deps.Server.ReadTimeout,
		WriteTimeout:      s.deps.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		timeout := s.deps.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	s.deps.Logger.Info("http server started", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.deps.Logger.Info("http server stopped")
	return nil
}

// authenticated resolves the bearer token and puts the user id in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.deps.Auth.Authenticate(r.Context(), bearerToken(r.Header.Get("Authorization")))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="planit"`)
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(domain.ContextWithUserID(r.Context(), id.UserID)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
