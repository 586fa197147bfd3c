package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
)

// UpdateFunc applies the result of a mutation to the cache
type UpdateFunc func(c cache.Cache, res *link.Result) error

// MutationOptions describes a mutation
type MutationOptions struct {
	Mutation  string
	Variables map[string]interface{}
	// OptimisticResponse is passed to Update before the server answers. Cache
	// writes made during that call are kept in an optimistic layer that is
	// dropped once the mutation settles.
	OptimisticResponse json.RawMessage
	// Update runs with the server result after a successful mutation
	Update UpdateFunc
	// RefetchQueries are fetched from the link after a successful mutation
	RefetchQueries []QueryOptions
	Context        map[string]interface{}
}

// Mutate runs a mutation
func (c *Client) Mutate(ctx context.Context, opts MutationOptions) (*link.Result, error) {
	op := c.operation(link.Mutation, opts.Mutation, opts.Variables, opts.Context)

	rollback := func() {}
	if len(opts.OptimisticResponse) > 0 && opts.Update != nil {
		rollback = func() { c.cache.RemoveOptimistic(op.ID) }
		if err := opts.Update(&optimisticCache{Cache: c.cache, id: op.ID}, &link.Result{Data: opts.OptimisticResponse}); err != nil {
			rollback()
			return nil, fmt.Errorf("optimistic update %s: %w", displayName(op), err)
		}
	}

	res, err := c.execute(ctx, op)
	rollback()
	if err != nil {
		return res, err
	}

	if opts.Update != nil {
		if err := opts.Update(c.cache, res); err != nil {
			return res, fmt.Errorf("update %s: %w", displayName(op), err)
		}
	}

	for _, q := range opts.RefetchQueries {
		q.FetchPolicy = NetworkOnly
		if _, err := c.Query(ctx, q); err != nil {
			c.log.Warn("Refetch after mutation failed", map[string]interface{}{
				"mutation": op.Name,
				"query":    link.OperationName(q.Query),
				"error":    err.Error(),
			})
		}
	}

	return res, nil
}

// optimisticCache records writes as an optimistic layer and reads through it
type optimisticCache struct {
	cache.Cache
	id string
}

func (o *optimisticCache) Read(key cache.Key, _ bool) (json.RawMessage, error) {
	return o.Cache.Read(key, true)
}

func (o *optimisticCache) Write(key cache.Key, data json.RawMessage) {
	o.Cache.RecordOptimistic(o.id, key, data)
}
