package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL   = "https://api.deepinfra.com"
	DefaultUserAgent = "deepinfra-go/0.1"

	contentTypeJSON = "application/json"

	chatCompletionsPath = "/v1/openai/chat/completions"
	transcriptionsPath  = "/v1/openai/audio/transcriptions"
	inferencePathPrefix = "/v1/inference/"

	maxSuccessBodyBytes = 16 << 20 // 16 MiB
	maxErrorBodyBytes   = 64 << 10 // 64 KiB
)

const (
	opChatCompletion     = "chat_completion"
	opAudioTranscription = "audio_transcription"
)

// Client talks to the DeepInfra HTTP API. It holds no per-request state
// and is safe for concurrent use.
type Client struct {
	token     Token
	baseURL   string
	userAgent string
	doer      Doer
	log       zerolog.Logger
	metrics   *metrics
}

type settings struct {
	baseURL    string
	userAgent  string
	doer       Doer
	doerSet    bool
	timeout    time.Duration
	logger     zerolog.Logger
	registerer prometheus.Registerer
}

// Option customises a Client at construction time.
type Option func(*settings)

// WithBaseURL overrides the provider base URL, e.g. for a local stub.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) { s.baseURL = baseURL }
}

// WithDoer plugs in the transport used for every exchange.
func WithDoer(d Doer) Option {
	return func(s *settings) {
		s.doer = d
		s.doerSet = true
	}
}

// WithHTTPClient is WithDoer for a *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		s.doerSet = true
		if hc == nil {
			s.doer = nil
			return
		}
		s.doer = hc
	}
}

// WithTimeout bounds each exchange made by the default transport. It has
// no effect when a custom Doer is supplied.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(s *settings) { s.userAgent = ua }
}

// WithLogger sets the diagnostics logger. Bodies are only logged at trace level.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics registers request counters and latency histograms on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// New constructs a client authenticated with token.
func New(token string, opts ...Option) (*Client, error) {
	tok, err := NewToken(token)
	if err != nil {
		return nil, &ConfigurationError{Field: "token", Err: err}
	}

	s := settings{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	baseURL, err := normalizeBaseURL(s.baseURL)
	if err != nil {
		return nil, &ConfigurationError{Field: "base_url", Err: err}
	}

	if s.timeout < 0 {
		return nil, &ConfigurationError{Field: "timeout", Err: fmt.Errorf("must not be negative, got %s", s.timeout)}
	}

	doer := s.doer
	if !s.doerSet {
		doer = newHTTPClient(s.timeout)
	}
	if doer == nil {
		return nil, &ConfigurationError{Field: "transport", Err: errors.New("transport must not be nil")}
	}

	userAgent := strings.TrimSpace(s.userAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var m *metrics
	if s.registerer != nil {
		m, err = newMetrics(s.registerer)
		if err != nil {
			return nil, &ConfigurationError{Field: "metrics", Err: err}
		}
	}

	return &Client{
		token:     tok,
		baseURL:   baseURL,
		userAgent: userAgent,
		doer:      doer,
		log:       s.logger.With().Str("component", "deepinfra").Logger(),
		metrics:   m,
	}, nil
}

// String describes the client without its credential.
func (c *Client) String() string {
	return fmt.Sprintf("client.Client{baseURL: %q, userAgent: %q, token: %s}", c.baseURL, c.userAgent, redacted)
}

func (c *Client) GoString() string {
	return c.String()
}

// BaseURL returns the provider base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// send dispatches a prepared request and returns the status and the
// (size-capped) body. This is the only place the bearer token is attached.
func (c *Client) send(ctx context.Context, op string, req *http.Request) (int, []byte, error) {
	requestID := uuid.NewString()

	req.Header.Set("Authorization", c.token.bearer())
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)

	logger := c.log.With().
		Str("operation", op).
		Str("request_id", requestID).
		Logger()
	logger.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("sending request")

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.metrics.observe(op, outcomeError, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		logger.Debug().Err(err).Dur("latency", time.Since(start)).Msg("request failed")
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	limit := int64(maxSuccessBodyBytes)
	if !isSuccess(resp.StatusCode) {
		limit = maxErrorBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	latency := time.Since(start)
	c.metrics.observe(op, statusOutcome(resp.StatusCode), latency)
	if err != nil {
		logger.Debug().Err(err).Int("status", resp.StatusCode).Msg("failed to read response body")
		return resp.StatusCode, nil, &TransportError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Int("bytes", len(body)).
		Msg("request completed")
	logger.Trace().Bytes("response_body", body).Msg("response body")

	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", errors.New("base url must not be empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("base url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("base url %q has no host", trimmed)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("base url %q must not carry a query or fragment", trimmed)
	}
	return trimmed, nil
}
