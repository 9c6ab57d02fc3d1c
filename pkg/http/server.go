package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MarketCore/pkg/http/middleware"
	applogger "MarketCore/pkg/logger"
)

// Handler registers routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	CORS            bool
	MetricsPath     string
	Registry        *prometheus.Registry
	Logger          *applogger.Logger
}

func WithHost(host string) ServerOption { return func(c *ServerConfig) { c.Host = host } }

func WithPort(port int) ServerOption { return func(c *ServerConfig) { c.Port = port } }

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout, c.WriteTimeout, c.ShutdownTimeout = read, write, shutdown
	}
}

func WithCORS(enabled bool) ServerOption { return func(c *ServerConfig) { c.CORS = enabled } }

// WithMetrics exposes reg on path; an empty path disables the endpoint.
func WithMetrics(path string, reg *prometheus.Registry) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath, c.Registry = path, reg }
}

func WithLogger(l *applogger.Logger) ServerOption { return func(c *ServerConfig) { c.Logger = l } }

// Server wraps an Echo instance with the standard middleware stack.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
}

func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     500 * time.Millisecond,
		CORS:            true,
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogging(cfg.Logger, cfg.SlowRequest))
	if cfg.Registry != nil {
		e.Use(middleware.NewHTTPMetrics(cfg.Registry).Middleware())
	}
	if cfg.CORS {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" {
		var h http.Handler = promhttp.Handler()
		if cfg.Registry != nil {
			h = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
		}
		e.GET(cfg.MetricsPath, echo.WrapHandler(h))
	}

	return &Server{echo: e, config: cfg}
}

// Start listens in the background. Listener errors other than a clean
// shutdown are logged.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.config.Logger.Info("http server listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.config.Logger.Error("http server stopped", applogger.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.config.Logger.Info("http server stopped gracefully")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }
