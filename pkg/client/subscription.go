package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drallgood/gqlstore/pkg/link"
	"github.com/drallgood/gqlstore/pkg/store"
)

// SubscriptionOptions describes a subscription
type SubscriptionOptions struct {
	Query     string
	Variables map[string]interface{}
	Context   map[string]interface{}
}

// Subscription forwards the results of a running subscription to its
// subscribers. Results arriving while nobody is subscribed are dropped.
type Subscription struct {
	feed   *store.Feed[*link.Result]
	cancel func()
	once   sync.Once

	mu   sync.Mutex
	stop func() bool
}

var _ store.Subscribable[*link.Result] = (*Subscription)(nil)

// Subscribe starts a subscription. It ends when Close is called or ctx is done.
func (c *Client) Subscribe(ctx context.Context, opts SubscriptionOptions) (*Subscription, error) {
	subscriber, ok := c.link.(link.Subscriber)
	if !ok {
		return nil, ErrSubscriptionsUnsupported
	}

	op := c.operation(link.Subscription, opts.Query, opts.Variables, opts.Context)
	feed := store.NewFeed[*link.Result]()

	cancel, err := subscriber.Subscribe(ctx, op, feed.Send)
	if err != nil {
		if errors.Is(err, link.ErrNoSubscriptionLink) {
			return nil, fmt.Errorf("%w: %w", ErrSubscriptionsUnsupported, err)
		}
		return nil, fmt.Errorf("subscription %s: %w", displayName(op), err)
	}

	c.log.Debug("Subscription started", map[string]interface{}{
		"operation": op.Name,
		"id":        op.ID,
	})

	s := &Subscription{feed: feed, cancel: cancel}
	s.mu.Lock()
	s.stop = context.AfterFunc(ctx, s.Close)
	s.mu.Unlock()
	return s, nil
}

// Subscribe implements store.Subscribable
func (s *Subscription) Subscribe(handler func(*link.Result)) func() {
	return s.feed.Subscribe(handler)
}

// Close stops the subscription and drops all subscribers. It is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.feed.Close()
	})
}

// Closed reports whether the subscription has ended
func (s *Subscription) Closed() bool {
	return s.feed.Closed()
}
