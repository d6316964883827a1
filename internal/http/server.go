// Package http provides the public HTTP server: the account and history API,
// health and metrics endpoints, and the WebSocket route.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xiaot623/spike/internal/config"
	"github.com/xiaot623/spike/internal/hub"
	"github.com/xiaot623/spike/internal/metrics"
	"github.com/xiaot623/spike/internal/relay"
	"github.com/xiaot623/spike/internal/service"
)

// Server is the public HTTP server.
type Server struct {
	echo    *echo.Echo
	service *service.Service
	hub     *hub.Hub
	relay   *relay.Relay
	log     zerolog.Logger
}

// requestValidator adapts validator.Validate to echo.Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer creates the HTTP server. ws handles upgrades on /ws and may be nil.
func NewServer(cfg *config.Config, svc *service.Service, h *hub.Hub, r *relay.Relay, ws echo.HandlerFunc, m *metrics.Metrics, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}

	s := &Server{
		echo:    e,
		service: svc,
		hub:     h,
		relay:   r,
		log:     logger.With().Str("component", "http").Logger(),
	}

	// Middleware
	e.Use(s.metricsMiddleware(m))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Debug()
			if v.Error != nil {
				ev = s.log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	// Register routes
	e.POST("/check-user", s.CheckUser)
	e.POST("/register", s.Register)
	e.POST("/login", s.Login)
	e.GET("/search-users", s.SearchUsers)
	e.GET("/past-users", s.PastUsers)
	e.GET("/messages", s.Messages)
	e.GET("/health", s.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if ws != nil {
		e.GET("/ws", ws)
	}

	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health reports liveness along with connection and presence counts.
// GET /health
func (s *Server) Health(c echo.Context) error {
	status, code := "healthy", http.StatusOK
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.service.Ping(ctx); err != nil {
		s.log.Error().Err(err).Msg("store ping failed")
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]interface{}{
		"status":      status,
		"connections": s.hub.GetConnectionCount(),
		"online":      s.relay.OnlineCount(),
	})
}

func (s *Server) metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.ObserveHTTP(c.Request().Method, path, status, time.Since(start).Seconds())
			return err
		}
	}
}
