package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hasura/go-graphql-client"

	"github.com/drallgood/gqlstore/internal/logger"
)

// WebSocketConfig configures the WebSocket link
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint (required)
	URL string
	// Token is sent as a bearer token in the connection params
	Token string
	// ConnectionParams are sent with connection_init
	ConnectionParams map[string]interface{}
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// subscriptionTransport is the part of graphql.SubscriptionClient the link uses
type subscriptionTransport interface {
	Exec(query string, variables map[string]interface{}, handler func(message []byte, err error) error) (string, error)
	Run() error
	Unsubscribe(id string) error
	Close() error
}

// WebSocket is a terminating link for subscriptions. Other operations are
// passed to next, so it is usually placed in front of an HTTP link.
type WebSocket struct {
	transport subscriptionTransport
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	closed  bool
}

// NewWebSocket creates a WebSocket link. The connection is opened lazily by
// the first subscription.
func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket link: %w", ErrMissingURL)
	}
	log := logger.OrGlobal(cfg.Logger).Component("websocket_link")

	params := map[string]interface{}{}
	for k, v := range cfg.ConnectionParams {
		params[k] = v
	}
	if cfg.Token != "" {
		params["headers"] = map[string]string{"Authorization": "Bearer " + cfg.Token}
	}

	sc := graphql.NewSubscriptionClient(cfg.URL).
		WithConnectionParams(params).
		WithLog(func(args ...interface{}) {
			log.Debug(fmt.Sprint(args...))
		}).
		OnError(func(_ *graphql.SubscriptionClient, err error) error {
			log.Error("Subscription connection error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		})

	return newWebSocket(sc, log), nil
}

func newWebSocket(t subscriptionTransport, log *logger.Logger) *WebSocket {
	return &WebSocket{transport: t, log: logger.OrGlobal(log)}
}

// Request implements Link
func (w *WebSocket) Request(ctx context.Context, op Operation, next Next) (*Result, error) {
	if op.Type == Subscription {
		return nil, fmt.Errorf("subscription %q must be started with Subscribe", op.Name)
	}
	return next(ctx, op)
}

// Subscribe implements Subscriber. emit receives every message until cancel
// is called or ctx is done.
func (w *WebSocket) Subscribe(ctx context.Context, op Operation, emit func(*Result)) (func(), error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, errors.New("websocket link is closed")
	}
	w.mu.Unlock()

	id, err := w.transport.Exec(op.Query, op.Variables, func(message []byte, err error) error {
		emit(toResult(message, err))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start subscription %s: %w", op.Name, err)
	}

	w.log.Debug("Subscription started", map[string]interface{}{
		"operation": op.Name,
		"id":        id,
	})

	w.ensureRunning()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := w.transport.Unsubscribe(id); err != nil {
				w.log.Warn("Failed to unsubscribe", map[string]interface{}{
					"id":    id,
					"error": err.Error(),
				})
			}
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return cancel, nil
}

func (w *WebSocket) ensureRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.closed {
		return
	}
	w.running = true

	go func() {
		err := w.transport.Run()
		if err != nil {
			w.log.Error("Subscription client stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()
}

// Close shuts the connection down
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.transport.Close()
}

func toResult(message []byte, err error) *Result {
	if err == nil {
		return &Result{Data: rawData(message)}
	}
	var gqlErrs graphql.Errors
	if errors.As(err, &gqlErrs) {
		return &Result{Data: rawData(message), Errors: convertErrors(gqlErrs)}
	}
	return &Result{
		Data:   rawData(message),
		Errors: GraphQLErrors{{Message: err.Error()}},
	}
}
