package antrian

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries the per-call request ID.
	RequestIDHeader = "X-Request-ID"

	tracerName      = "github.com/ambiyansyah-risyal/antrian"
	maxErrorBodyLen = 64 * 1024
)

// Caller is the transport the Orchestrator sends requests through. It wraps
// an *http.Client with hooks, middleware, optional retries, circuit breaking,
// tracing and metrics.
type Caller struct {
	httpClient *http.Client
	middleware []Middleware

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	breaker      *CircuitBreaker
	requestIDGen func() string
	tracer       trace.Tracer
	logger       Logger
	metrics      *MetricsCollector

	hooksMu sync.RWMutex
	hooks   Hooks
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) CallerOption {
	return func(c *Caller) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMiddleware appends middleware to the chain.
func WithMiddleware(middleware ...Middleware) CallerOption {
	return func(c *Caller) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRetry retries network failures and 5xx responses up to maxRetries
// times with exponential backoff starting at initialBackoff.
func WithRetry(maxRetries int, initialBackoff time.Duration) CallerOption {
	return func(c *Caller) {
		if maxRetries < 0 {
			maxRetries = 0
		}
		c.maxRetries = maxRetries
		if initialBackoff > 0 {
			c.initialBackoff = initialBackoff
		}
	}
}

// WithMaxBackoff caps the delay between retries.
func WithMaxBackoff(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.maxBackoff = d
		}
	}
}

// WithCircuitBreaker guards the Caller with a circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) CallerOption {
	return func(c *Caller) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) CallerOption {
	return func(c *Caller) {
		if gen != nil {
			c.requestIDGen = gen
		}
	}
}

// WithTracer sets the tracer used for call spans. Defaults to the global
// otel tracer provider.
func WithTracer(tracer trace.Tracer) CallerOption {
	return func(c *Caller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCallerLogger sets the caller logger.
func WithCallerLogger(l Logger) CallerOption {
	return func(c *Caller) {
		c.logger = orNop(l)
	}
}

// WithCallerMetrics sets the metrics collector.
func WithCallerMetrics(m *MetricsCollector) CallerOption {
	return func(c *Caller) {
		c.metrics = m
	}
}

// NewCaller creates a Caller with default hooks and no retries.
func NewCaller(opts ...CallerOption) *Caller {
	c := &Caller{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		requestIDGen:   uuid.NewString,
		tracer:         otel.Tracer(tracerName),
		logger:         nopLogger{},
		hooks:          DefaultHooks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHooks overlays the non-nil hooks onto the current ones. It affects
// every later call through this Caller.
func (c *Caller) SetHooks(h Hooks) *Caller {
	c.hooksMu.Lock()
	c.hooks = c.hooks.merge(h)
	c.hooksMu.Unlock()
	return c
}

// Hooks returns the active hooks.
func (c *Caller) Hooks() Hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

// CircuitBreaker returns the breaker, or nil.
func (c *Caller) CircuitBreaker() *CircuitBreaker {
	return c.breaker
}

// Call performs one logical request to target and returns the parsed body.
// parse overrides the OnParse hook when non-nil. Responses outside 2xx are
// errors. Every error passes through the OnError hook.
func (c *Caller) Call(ctx context.Context, target string, cfg CallConfig, parse ParseFunc) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	hooks := c.Hooks()
	start := time.Now()
	requestID := c.requestIDGen()

	config := &cfg
	target, next, err := hooks.BeforeCall(ctx, target, config)
	if err != nil {
		return c.fail(hooks, config, &ClientError{
			Type:      ErrorTypeHook,
			Message:   "before-call hook rejected the request",
			Cause:     err,
			RequestID: requestID,
			Method:    config.method(),
			URL:       target,
			Timestamp: time.Now(),
		})
	}
	if next != nil {
		config = next
	}
	method := config.method()

	ctx, span := c.tracer.Start(ctx, "antrian.call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
			attribute.String("antrian.request_id", requestID),
		))
	defer span.End()

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	resp, err := c.do(ctx, target, config, requestID, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.fail(hooks, config, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if parse == nil {
		parse = hooks.OnParse
	}
	data, err := parse(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return c.fail(hooks, config, c.readError(ctx, err, requestID, method, target, time.Since(start)))
	}

	data, err = hooks.BeforeReturn(data, config)
	if err != nil {
		return c.fail(hooks, config, c.newError(ErrorTypeHook, "before-return hook failed", err, requestID, method, target, 0, time.Since(start)))
	}

	c.logger.Debug("Request completed", "requestID", requestID, "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(start))
	return data, nil
}

// readError classifies a failure while reading the response body. A deadline
// or cancellation that lands mid-body is reported the same way as one that
// lands before the response arrives.
func (c *Caller) readError(ctx context.Context, err error, requestID, method, target string, elapsed time.Duration) *ClientError {
	endpoint := endpointOf(target)
	switch {
	case isDeadline(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.metrics.RecordError(ErrorTypeTimeout, method, endpoint)
		return c.newError(ErrorTypeTimeout, "request timed out", err, requestID, method, target, 0, elapsed)
	case ctx.Err() != nil:
		c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
		return c.newError(ErrorTypeNetwork, "request canceled", err, requestID, method, target, 0, elapsed)
	default:
		c.metrics.RecordError(ErrorTypeParse, method, endpoint)
		return c.newError(ErrorTypeParse, "failed to parse response", err, requestID, method, target, 0, elapsed)
	}
}

func (c *Caller) fail(hooks Hooks, config *CallConfig, err error) (any, error) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		c.logger.Warn("Request failed", "requestID", clientErr.RequestID, "type", clientErr.Type, "url", clientErr.URL, "error", err)
	}
	return hooks.OnError(err, config)
}

// do runs the HTTP exchange with retries and returns a 2xx response.
func (c *Caller) do(ctx context.Context, target string, config *CallConfig, requestID string, start time.Time) (*http.Response, error) {
	method := config.method()

	body, contentType, err := encodeBody(config.Body)
	if err != nil {
		return nil, c.newError(ErrorTypeValidation, "invalid request body", err, requestID, method, target, 0, 0)
	}

	transport := chain(RoundTripperFunc(c.httpClient.Do), c.middleware)

	var (
		resp    *http.Response
		attempt = -1
		lastErr error
	)

	operation := func() error {
		attempt++

		if c.breaker != nil && !c.breaker.Allow() {
			c.metrics.RecordError(ErrorTypeCircuitOpen, method, endpointOf(target))
			return backoff.Permanent(c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", nil, requestID, method, target, attempt, time.Since(start)))
		}

		req, err := c.newRequest(ctx, method, target, config.Header, body, contentType, requestID)
		if err != nil {
			return backoff.Permanent(c.newError(ErrorTypeValidation, "failed to build request", err, requestID, method, target, attempt, 0))
		}
		endpoint := endpointFromURL(req.URL)

		attemptStart := time.Now()
		r, err := transport.RoundTrip(req)
		if err != nil {
			c.metrics.RecordRequest(method, endpoint, 0, time.Since(attemptStart))

			// Caller cancellation leaves the breaker untouched.
			if errors.Is(ctx.Err(), context.Canceled) {
				c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
				lastErr = c.newError(ErrorTypeNetwork, "request canceled", err, requestID, method, target, attempt, time.Since(start))
				return backoff.Permanent(lastErr)
			}
			c.recordBreaker(false)

			if isDeadline(err) {
				c.metrics.RecordError(ErrorTypeTimeout, method, endpoint)
				lastErr = c.newError(ErrorTypeTimeout, "request timed out", err, requestID, method, target, attempt, time.Since(start))
				return backoff.Permanent(lastErr)
			}
			if ctx.Err() != nil {
				c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
				lastErr = c.newError(ErrorTypeNetwork, "request canceled", err, requestID, method, target, attempt, time.Since(start))
				return backoff.Permanent(lastErr)
			}
			c.metrics.RecordError(ErrorTypeNetwork, method, endpoint)
			lastErr = c.newError(ErrorTypeNetwork, "network request failed", err, requestID, method, target, attempt, time.Since(start))
			return lastErr
		}
		c.metrics.RecordRequest(method, endpoint, r.StatusCode, time.Since(attemptStart))

		if r.StatusCode >= 200 && r.StatusCode < 300 {
			c.recordBreaker(true)
			resp = r
			return nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBodyLen))
		_ = r.Body.Close()

		errType := classifyStatus(r.StatusCode)
		c.metrics.RecordError(errType, method, endpoint)
		statusErr := c.newError(errType, fmt.Sprintf("unexpected status %d", r.StatusCode), nil, requestID, method, target, attempt, time.Since(start))
		statusErr.StatusCode = r.StatusCode
		statusErr.Body = errBody
		lastErr = statusErr

		if errType == ErrorTypeServer {
			c.recordBreaker(false)
			return statusErr
		}
		c.recordBreaker(true)
		return backoff.Permanent(statusErr)
	}

	notify := func(err error, delay time.Duration) {
		c.metrics.RecordRetry(method, endpointOf(target))
		c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "maxRetries", c.maxRetries, "backoff", delay, "error", err)
	}

	err = backoff.RetryNotify(operation, c.retryPolicy(ctx), notify)
	if err == nil {
		return resp, nil
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return nil, clientErr
	}

	// The backoff wait was cut short by the context.
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, c.newError(ErrorTypeTimeout, "request timed out", lastErrOr(lastErr, err), requestID, method, target, attempt, time.Since(start))
	}
	return nil, c.newError(ErrorTypeNetwork, "request aborted", lastErrOr(lastErr, err), requestID, method, target, attempt, time.Since(start))
}

func lastErrOr(last, fallback error) error {
	if last != nil {
		return last
	}
	return fallback
}

func (c *Caller) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	exp.MaxInterval = c.maxBackoff
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
}

func (c *Caller) newRequest(ctx context.Context, method, target string, header http.Header, body []byte, contentType, requestID string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func (c *Caller) recordBreaker(success bool) {
	if c.breaker == nil {
		return
	}
	if success {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}
	c.metrics.RecordCircuitBreakerState("default", c.breaker.State())
}

func (c *Caller) newError(errorType, message string, cause error, requestID, method, target string, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Method:    method,
		URL:       target,
		Endpoint:  endpointOf(target),
		Attempt:   attempt,
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

func endpointFromURL(u *url.URL) string {
	if u == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

// endpointOf derives the host+path metric label from a raw target.
func endpointOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	return endpointFromURL(u)
}
