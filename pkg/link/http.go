package link

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hasura/go-graphql-client"

	"github.com/drallgood/gqlstore/internal/config"
	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/internal/util"
)

const (
	// DefaultMaxRetries is the default number of retries for failed requests
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 250 * time.Millisecond
)

// ErrMissingURL is returned when a network link is created without an endpoint
var ErrMissingURL = errors.New("endpoint URL is required")

// HTTPConfig holds configuration for the HTTP link
type HTTPConfig struct {
	// URL is the GraphQL endpoint (required)
	URL string
	// Token is sent as a bearer token when set
	Token string
	// Headers are added to every request
	Headers map[string]string
	// Timeout bounds each HTTP request
	Timeout time.Duration
	// MaxRetries is the number of retries after network or 5xx/429 failures
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
	// RateLimit is the minimum time between requests once Burst is spent
	RateLimit time.Duration
	// Burst is the token bucket size
	Burst int
	// MaxConcurrent bounds in-flight requests
	MaxConcurrent int
	// Transport is the underlying round tripper (default: http.DefaultTransport)
	Transport http.RoundTripper
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// DefaultHTTPConfig returns the default configuration for the HTTP link
func DefaultHTTPConfig() *HTTPConfig {
	cfg := config.DefaultConfig()

	return &HTTPConfig{
		Timeout:       cfg.Endpoint.Timeout,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		RateLimit:     cfg.RateLimit.Rate,
		Burst:         cfg.RateLimit.Burst,
		MaxConcurrent: cfg.RateLimit.MaxConcurrent,
	}
}

// HTTPConfigFromConfig maps the application configuration onto an HTTPConfig
func HTTPConfigFromConfig(cfg *config.Config) *HTTPConfig {
	h := DefaultHTTPConfig()
	h.URL = cfg.Endpoint.URL
	h.Token = cfg.Endpoint.Token
	if cfg.Endpoint.Timeout > 0 {
		h.Timeout = cfg.Endpoint.Timeout
	}
	h.RateLimit = cfg.RateLimit.Rate
	h.Burst = cfg.RateLimit.Burst
	h.MaxConcurrent = cfg.RateLimit.MaxConcurrent
	return h
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Retryable reports whether the request may succeed when repeated
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTP is a terminating link that sends operations to a GraphQL server
type HTTP struct {
	url         string
	gql         *graphql.Client
	rateLimiter *util.RateLimiter
	maxRetries  int
	retryDelay  time.Duration
	log         *logger.Logger
}

// NewHTTP creates an HTTP link
func NewHTTP(cfg *HTTPConfig) (*HTTP, error) {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("http link: %w", ErrMissingURL)
	}

	log := logger.OrGlobal(cfg.Logger).Component("http_link")

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &headerAddingTransport{
			token:   cfg.Token,
			headers: cfg.Headers,
			rt: &loggingRoundTripper{
				logger: log,
				rt:     rt,
			},
		},
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	log.Debug("Created HTTP link", map[string]interface{}{
		"url":         cfg.URL,
		"timeout":     cfg.Timeout.String(),
		"max_retries": maxRetries,
		"has_token":   cfg.Token != "",
	})

	return &HTTP{
		url:         cfg.URL,
		gql:         graphql.NewClient(cfg.URL, httpClient),
		rateLimiter: util.NewRateLimiter(cfg.RateLimit, cfg.Burst, cfg.MaxConcurrent, log),
		maxRetries:  maxRetries,
		retryDelay:  cfg.RetryDelay,
		log:         log,
	}, nil
}

// Request implements Link. Subscriptions are forwarded to next.
func (h *HTTP) Request(ctx context.Context, op Operation, next Next) (*Result, error) {
	if op.Type == Subscription {
		return next(ctx, op)
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			delay := h.retryDelay * time.Duration(attempt)
			var httpErr *HTTPError
			if errors.As(lastErr, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
				delay = h.rateLimiter.OnRateLimit(httpErr.RetryAfter)
			}
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		res, err := h.do(ctx, op)
		if err == nil {
			return res, nil
		}
		lastErr = err

		h.log.Error("GraphQL request failed", map[string]interface{}{
			"error":     err.Error(),
			"operation": op.Name,
			"attempt":   attempt + 1,
		})

		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (h *HTTP) do(ctx context.Context, op Operation) (*Result, error) {
	if err := h.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	defer h.rateLimiter.Release()

	state := &requestState{headers: operationHeaders(op)}
	ctx = context.WithValue(ctx, requestStateKey{}, state)

	var opts []graphql.Option
	if op.Name != "" {
		opts = append(opts, graphql.OperationName(op.Name))
	}

	h.log.Debug("Executing GraphQL request", map[string]interface{}{
		"operation": op.Name,
		"type":      string(op.Type),
		"id":        op.ID,
	})

	data, err := h.gql.ExecRaw(ctx, op.Query, op.Variables, opts...)
	if failure := state.failure(); failure != nil {
		return nil, failure
	}
	if err != nil {
		var gqlErrs graphql.Errors
		if errors.As(err, &gqlErrs) {
			return &Result{Data: rawData(data), Errors: convertErrors(gqlErrs)}, nil
		}
		return nil, fmt.Errorf("graphql request: %w", err)
	}

	return &Result{Data: rawData(data)}, nil
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func rawData(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func convertErrors(errs graphql.Errors) GraphQLErrors {
	out := make(GraphQLErrors, 0, len(errs))
	for _, e := range errs {
		out = append(out, GraphQLError{
			Message:    e.Message,
			Extensions: e.Extensions,
		})
	}
	return out
}

// operationHeaders collects the per-operation headers from the operation context
func operationHeaders(op Operation) map[string]string {
	headers := map[string]string{}
	if name := op.ContextString(ContextClientName); name != "" {
		headers["apollographql-client-name"] = name
	}
	if version := op.ContextString(ContextClientVersion); version != "" {
		headers["apollographql-client-version"] = version
	}
	if extra, ok := op.Context[ContextHeaders].(map[string]string); ok {
		for k, v := range extra {
			headers[k] = v
		}
	}
	return headers
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type requestStateKey struct{}

// requestState travels with a single request so the transports can report
// network and HTTP failures that the GraphQL client would otherwise flatten
type requestState struct {
	headers map[string]string

	mu  sync.Mutex
	err error
}

func (s *requestState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *requestState) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func stateFrom(req *http.Request) *requestState {
	s, _ := req.Context().Value(requestStateKey{}).(*requestState)
	return s
}

// headerAddingTransport is an http.RoundTripper that adds authentication,
// static and per-operation headers
type headerAddingTransport struct {
	token   string
	headers map[string]string
	rt      http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface.
func (t *headerAddingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.token != "" {
		token := strings.TrimSpace(t.token)
		if !strings.HasPrefix(token, "Bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if s := stateFrom(req); s != nil {
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(req)
}

// loggingRoundTripper logs requests and turns error statuses into HTTPError
type loggingRoundTripper struct {
	logger *logger.Logger
	rt     http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	l.logger.Debug("Sending request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	state := stateFrom(req)

	resp, err := l.rt.RoundTrip(req)
	if err != nil {
		l.logger.Error("Request failed", map[string]interface{}{
			"error":  err.Error(),
			"method": req.Method,
			"url":    req.URL.String(),
		})
		if state != nil {
			state.fail(fmt.Errorf("HTTP request failed: %w", err))
		}
		return nil, err
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"path":   req.URL.Path,
	}

	if resp.StatusCode < 400 {
		l.logger.Debug("Received response", fields)
		return resp, nil
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		body = []byte(readErr.Error())
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	l.logger.Error("Received error response", fields)
	if state != nil {
		state.fail(&HTTPError{
			StatusCode: resp.StatusCode,
			Body:       body,
			RetryAfter: util.ParseRetryAfter(resp.Header.Get("Retry-After")),
		})
	}
	return resp, nil
}
