package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
	"github.com/drallgood/gqlstore/pkg/store"
)

// WatchQueryOptions describes a query whose result is observed over time
type WatchQueryOptions struct {
	Query       string
	Variables   map[string]interface{}
	FetchPolicy FetchPolicy
	// PollInterval refetches from the link while subscribed. Zero disables polling.
	PollInterval time.Duration
	Context      map[string]interface{}
}

// QueryResult is one state of a watched query
type QueryResult struct {
	Data    json.RawMessage
	Loading bool
	Err     error
}

// Decode unmarshals the data of r into v
func (r QueryResult) Decode(v interface{}) error {
	return (&link.Result{Data: r.Data}).Decode(v)
}

// ObservableQuery is a query result that changes over time. It starts in the
// loading state, fetches when the first subscriber arrives and emits again
// whenever its cache entry changes.
type ObservableQuery struct {
	client *Client
	opts   WatchQueryOptions
	policy FetchPolicy
	// invalid holds the error for options that cannot be run
	invalid error
	key     cache.Key
	store   *store.Writable[QueryResult]
}

var _ store.Subscribable[QueryResult] = (*ObservableQuery)(nil)

// WatchQuery creates an ObservableQuery. Nothing is fetched until it has a subscriber.
func (c *Client) WatchQuery(opts WatchQueryOptions) *ObservableQuery {
	policy, err := c.fetchPolicy(opts.FetchPolicy)
	if err != nil {
		err = fmt.Errorf("query %s: %w", link.OperationName(opts.Query), err)
	}
	q := &ObservableQuery{
		client:  c,
		opts:    opts,
		policy:  policy,
		invalid: err,
		key:     cache.KeyFor(opts.Query, opts.Variables),
	}
	q.store = store.NewReadable(QueryResult{Loading: true}, q.start)
	return q
}

// Subscribe implements store.Subscribable. The current state is delivered immediately.
func (q *ObservableQuery) Subscribe(handler func(QueryResult)) func() {
	return q.store.Subscribe(handler)
}

// Current returns the latest state without subscribing
func (q *ObservableQuery) Current() QueryResult {
	return q.store.Get()
}

// Options returns the options the query was created with
func (q *ObservableQuery) Options() WatchQueryOptions {
	return q.opts
}

// Refetch asks the link again regardless of the fetch policy
func (q *ObservableQuery) Refetch(ctx context.Context) (*link.Result, error) {
	if q.invalid != nil {
		return nil, q.invalid
	}
	return q.fetch(ctx, q.store.Set)
}

func (q *ObservableQuery) start(set func(QueryResult)) func() {
	if q.invalid != nil {
		set(QueryResult{Err: q.invalid})
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	stopWatching := func() {}
	if q.policy != NoCache {
		stopWatching = q.client.cache.Watch(q.key, func(data json.RawMessage) {
			if data == nil {
				set(QueryResult{Err: fmt.Errorf("query %s: %w", link.OperationName(q.opts.Query), cache.ErrCacheMiss)})
				return
			}
			set(QueryResult{Data: data})
		})
	}

	answered := false
	if q.policy == CacheFirst || q.policy == CacheOnly {
		data, err := q.client.cache.Read(q.key, true)
		switch {
		case err == nil:
			set(QueryResult{Data: data})
			answered = true
		case q.policy == CacheOnly:
			set(QueryResult{Err: fmt.Errorf("query %s: %w", link.OperationName(q.opts.Query), err)})
			answered = true
		}
	}

	if !answered {
		go func() {
			_, _ = q.fetch(ctx, set)
		}()
	}
	if q.opts.PollInterval > 0 && q.policy != CacheOnly {
		go q.poll(ctx, set)
	}

	return func() {
		cancel()
		stopWatching()
	}
}

// fetch runs the query through the link. Results reach subscribers through
// the cache watch, or directly when the cache is bypassed.
func (q *ObservableQuery) fetch(ctx context.Context, set func(QueryResult)) (*link.Result, error) {
	op := q.client.operation(link.Query, q.opts.Query, q.opts.Variables, q.opts.Context)
	res, err := q.client.execute(ctx, op)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		var data json.RawMessage
		if res != nil {
			data = res.Data
		}
		set(QueryResult{Data: data, Err: err})
		return res, err
	}

	if q.policy == NoCache || len(res.Data) == 0 {
		set(QueryResult{Data: res.Data})
	} else {
		q.client.cache.Write(q.key, res.Data)
	}
	return res, nil
}

func (q *ObservableQuery) poll(ctx context.Context, set func(QueryResult)) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.fetch(ctx, set); err != nil && ctx.Err() == nil {
				q.client.log.Warn("Polling failed", map[string]interface{}{
					"operation": link.OperationName(q.opts.Query),
					"error":     err.Error(),
				})
			}
		}
	}
}
