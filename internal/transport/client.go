package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/example/scriptrun-bridge/internal/models"
	"github.com/example/scriptrun-bridge/internal/util"
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
	maxMessageRunes     = 1024

	// notOKMessage matches the text legacy callers already branch on.
	notOKMessage = "Error: Network response was not ok"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the transport client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the backend.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithBodyLimit adjusts how many bytes are read from a response body.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// A non-positive rps leaves the client unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracer records one client span per request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithPropagator sets the propagator used to inject trace headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		if p != nil {
			c.propagator = p
		}
	}
}

// WithClock overrides the clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client performs backend calls and normalizes every result into a
// models.Outcome. None of its operations return an error.
type Client struct {
	logger       zerolog.Logger
	httpClient   HTTPClient
	baseURL      string
	timeout      time.Duration
	maxBodyBytes int64
	limiter      *rate.Limiter
	tracer       trace.Tracer
	propagator   propagation.TextMapPropagator
	now          func() time.Time
}

// New constructs a client for the backend at baseURL. An empty baseURL falls
// back to the local development backend.
func New(baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	baseURL, err := util.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: base url: %w", err)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		logger:       logger,
		httpClient:   &http.Client{},
		baseURL:      baseURL,
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		tracer:       noop.NewTracerProvider().Tracer("scriptrun/transport"),
		propagator:   otel.GetTextMapPropagator(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the backend address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	route       route
	query       url.Values
	body        []byte
	contentType string
}

func (c *Client) get(ctx context.Context, r route, query url.Values) models.Outcome {
	return c.do(ctx, request{route: r, query: query})
}

func (c *Client) postJSON(ctx context.Context, r route, payload any) models.Outcome {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.ConnectionFailure(models.FailureInvalidCall, fmt.Errorf("encode request: %w", err))
	}
	return c.do(ctx, request{route: r, body: body, contentType: "application/json"})
}

func (c *Client) do(ctx context.Context, req request) models.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	start := c.now()

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := c.tracer.Start(ctx, "scriptrun."+req.route.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.route.method),
			attribute.String("url.path", req.route.path),
			attribute.String("scriptrun.request_id", requestID),
		),
	)
	defer span.End()

	out, status := c.roundTrip(ctx, req, requestID)

	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if out.IsFailure() {
		span.SetAttributes(attribute.String("scriptrun.failure", string(out.Failure)))
		span.SetStatus(codes.Error, out.Message)
	}

	var event *zerolog.Event
	if out.IsFailure() {
		event = c.logger.Warn().Str("failure", string(out.Failure))
	} else {
		event = c.logger.Debug()
	}
	event.
		Str("operation", req.route.name).
		Str("request_id", requestID).
		Int("status", status).
		Dur("duration", c.now().Sub(start)).
		Msg("backend call settled")

	return out
}

func (c *Client) roundTrip(ctx context.Context, req request, requestID string) (models.Outcome, int) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.ConnectionFailure(models.FailureConnection, fmt.Errorf("rate limit: %w", err)), 0
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + req.route.path
	if q := encodeQuery(req.query); q != "" {
		endpoint += "?" + q
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.route.method, endpoint, body)
	if err != nil {
		return models.ConnectionFailure(models.FailureConnection, err), 0
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.ConnectionFailure(models.FailureConnection, err), 0
	}
	defer resp.Body.Close()

	data, err := c.readBody(resp.Body)
	if err != nil {
		return models.ConnectionFailure(models.FailureConnection, err), resp.StatusCode
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.ConnectionFailure(models.FailureServer, notOK(data)), resp.StatusCode
	}

	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.ConnectionFailure(models.FailureDecode, fmt.Errorf("decode response: %w", err)), resp.StatusCode
	}
	return models.NewSettled(data), resp.StatusCode
}

func (c *Client) readBody(rc io.ReadCloser) ([]byte, error) {
	if rc == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(rc, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// notOK builds the non-2xx error, appending the response body when present.
func notOK(body []byte) error {
	text := truncate(strings.TrimSpace(string(body)), maxMessageRunes)
	if text == "" {
		return errors.New(notOKMessage)
	}
	return fmt.Errorf("%s: %s", notOKMessage, text)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
