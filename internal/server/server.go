// Package server exposes the redaction engine over HTTP: uploads are
// redacted, published under the upload directory and recorded in the
// per-user download history.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/tsawler/redactor"
	"github.com/tsawler/redactor/internal/config"
	"github.com/tsawler/redactor/internal/history"
	"github.com/tsawler/redactor/rules"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP API.
type Server struct {
	cfg     config.Config
	engine  *redactor.Engine
	rules   *rules.Store
	history *history.Store
	logger  *slog.Logger
	limiter *rate.Limiter
	router  *gin.Engine
}

// New creates a server. The upload directory is created if missing.
func New(cfg config.Config, engine *redactor.Engine, rs *rules.Store, hist *history.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		rules:   rs,
		history: hist,
		logger:  logger,
	}
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), securityHeaders())
	r.MaxMultipartMemory = 8 << 20

	r.GET("/", s.rootHandler)
	r.GET("/health", s.healthHandler)

	r.POST("/upload/:type", s.rateLimit(), s.uploadHandler)

	r.GET("/history/:email", s.listHistoryHandler)
	r.DELETE("/history/item", s.deleteHistoryItemHandler)
	r.DELETE("/history/:email", s.deleteHistoryHandler)

	r.Static("/uploads", s.cfg.UploadDir)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully. The
// number of simultaneous connections is capped by MaxConnections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "max_connections", s.cfg.MaxConnections)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
