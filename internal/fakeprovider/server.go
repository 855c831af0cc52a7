// Package fakeprovider is a local stand-in for the DeepInfra API. It speaks
// the same wire shapes as the real service so the client and CLI can be
// exercised without network access or credentials.
package fakeprovider

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes        = 1 << 20  // 1 MiB
	maxUploadBytes      = 32 << 20 // 32 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

// Options configures a stub server.
type Options struct {
	// Token is the only bearer credential the server accepts.
	Token string
	Port  int
	// Logger receives one line per request. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Registry backs /metrics. A private registry is created when nil.
	Registry *prometheus.Registry
}

type Server struct {
	token    []byte
	app      *echo.Echo
	address  string
	port     int
	log      zerolog.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// New constructs the stub server with routes and middleware.
func New(opts Options) (*Server, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("token must not be empty")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("port must be a valid TCP port, got %d", opts.Port)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "fakeprovider").Logger()

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		token:    []byte(token),
		app:      e,
		address:  fmt.Sprintf(":%d", opts.Port),
		port:     opts.Port,
		log:      logger,
		registry: registry,
		requests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "deepinfra",
			Subsystem: "stub",
			Name:      "requests_total",
			Help:      "Requests served by the stub provider by route and status",
		}, []string{"route", "status"}),
	}

	e.HTTPErrorHandler = srv.errorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:  true,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			srv.requests.WithLabelValues(c.Path(), strconv.Itoa(v.Status)).Inc()
			srv.log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Int64("latency_ms", v.Latency.Milliseconds()).
				Err(v.Error).
				Msg("request")
			return nil
		},
	}))

	srv.registerRoutes()
	return srv, nil
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.port)
	s.log.Info().Str("addr", s.address).Msg("starting stub provider")

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.log.Info().Msg("stub provider shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.app.Group("/v1", s.requireToken)
	api.POST("/openai/chat/completions", s.handleChatCompletions)
	api.POST("/openai/audio/transcriptions", s.handleTranscriptions)
	api.POST("/inference/*", s.handleInference)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requireToken rejects requests whose bearer token differs from the configured one.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), s.token) != 1 {
			return requestError{
				Status:  http.StatusUnauthorized,
				Message: "invalid token",
				Type:    "authentication_error",
				Code:    "unauthorized",
			}
		}
		return next(c)
	}
}

// requestError renders as the OpenAI-style {"error":{...}} envelope.
type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// detailError renders as the native {"detail":[{loc,msg,type}]} shape.
type detailError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func (e detailError) Error() string {
	return strings.Join(e.Loc, ".") + ": " + e.Msg
}

func missingField(loc ...string) detailError {
	return detailError{Loc: loc, Msg: "field required", Type: "value_error.missing"}
}

func invalidField(msg string, loc ...string) detailError {
	return detailError{Loc: loc, Msg: msg, Type: "value_error"}
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var detail detailError
	if errors.As(err, &detail) {
		_ = c.JSON(http.StatusUnprocessableEntity, map[string]any{"detail": []detailError{detail}})
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, map[string]any{"detail": fmt.Sprint(he.Message)})
		return
	}

	s.log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled error")
	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("deepinfra stub provider ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  POST /v1/openai/chat/completions")
	fmt.Println("  POST /v1/openai/audio/transcriptions")
	fmt.Println("  POST /v1/inference/<model>")
	fmt.Printf("Point the CLI at it with:\n  deepinfra --base-url http://%s:%d chat \"hello\"\n\n", host, port)
}

func readAll(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
