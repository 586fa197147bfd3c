package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
)

// QueryOptions describes a one-off query
type QueryOptions struct {
	Query       string
	Variables   map[string]interface{}
	FetchPolicy FetchPolicy
	// Context is copied into the operation context, e.g. link.ContextHeaders
	Context map[string]interface{}
}

// ReadQueryOptions identifies a cached query result
type ReadQueryOptions struct {
	Query     string
	Variables map[string]interface{}
}

// WriteQueryOptions stores data for a query without asking the link
type WriteQueryOptions struct {
	Query     string
	Variables map[string]interface{}
	Data      json.RawMessage
}

// Query runs a query according to its fetch policy
func (c *Client) Query(ctx context.Context, opts QueryOptions) (*link.Result, error) {
	policy, err := c.fetchPolicy(opts.FetchPolicy)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", link.OperationName(opts.Query), err)
	}
	key := cache.KeyFor(opts.Query, opts.Variables)

	if policy == CacheFirst || policy == CacheOnly {
		data, err := c.cache.Read(key, true)
		if err == nil {
			c.log.Debug("Query answered from cache", map[string]interface{}{
				"operation": link.OperationName(opts.Query),
			})
			return &link.Result{Data: data}, nil
		}
		if policy == CacheOnly {
			return nil, fmt.Errorf("query %s: %w", link.OperationName(opts.Query), err)
		}
	}

	res, err := c.execute(ctx, c.operation(link.Query, opts.Query, opts.Variables, opts.Context))
	if err != nil {
		return res, err
	}

	if policy != NoCache && len(res.Data) > 0 {
		c.cache.Write(key, res.Data)
	}
	return res, nil
}

// ReadQuery returns the cached result of a query. With optimistic set,
// pending optimistic data is included.
func (c *Client) ReadQuery(opts ReadQueryOptions, optimistic bool) (json.RawMessage, error) {
	return c.cache.Read(cache.KeyFor(opts.Query, opts.Variables), optimistic)
}

// WriteQuery stores data as the result of a query and notifies its watchers
func (c *Client) WriteQuery(opts WriteQueryOptions) error {
	if len(opts.Data) == 0 || !json.Valid(opts.Data) {
		return fmt.Errorf("write query %s: %w", link.OperationName(opts.Query), ErrInvalidData)
	}
	c.cache.Write(cache.KeyFor(opts.Query, opts.Variables), opts.Data)
	return nil
}
