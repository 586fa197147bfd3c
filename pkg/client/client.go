// Package client is a small GraphQL client: a cache in front of a link chain,
// with watchable queries, optimistic mutations and subscriptions.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/link"
)

var (
	// ErrInvalidOptions is returned by New when required options are missing or invalid
	ErrInvalidOptions = errors.New("invalid client options")
	// ErrSubscriptionsUnsupported is returned when the link chain cannot subscribe
	ErrSubscriptionsUnsupported = errors.New("link does not support subscriptions")
	// ErrInvalidData is returned when data written to the cache is not valid JSON
	ErrInvalidData = errors.New("invalid data")
)

// FetchPolicy controls how queries combine the cache and the link
type FetchPolicy string

const (
	// CacheFirst answers from the cache and only asks the link on a miss
	CacheFirst FetchPolicy = "cache-first"
	// NetworkOnly always asks the link and stores the result
	NetworkOnly FetchPolicy = "network-only"
	// CacheOnly never asks the link
	CacheOnly FetchPolicy = "cache-only"
	// NoCache always asks the link and never touches the cache
	NoCache FetchPolicy = "no-cache"
)

// ParseFetchPolicy parses a fetch policy name. An empty string means CacheFirst.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch p := FetchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CacheFirst, nil
	case CacheFirst, NetworkOnly, CacheOnly, NoCache:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown fetch policy %q", ErrInvalidOptions, s)
	}
}

// Options configures a Client
type Options struct {
	// Cache stores query results (required)
	Cache cache.Cache
	// Link executes operations (required)
	Link link.Link
	// Name and Version identify the client to the server
	Name    string
	Version string
	// DefaultFetchPolicy applies when an operation does not set one
	DefaultFetchPolicy FetchPolicy
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// API is the surface shared by Client and test doubles built on it
type API interface {
	Query(ctx context.Context, opts QueryOptions) (*link.Result, error)
	WatchQuery(opts WatchQueryOptions) *ObservableQuery
	ReadQuery(opts ReadQueryOptions, optimistic bool) (json.RawMessage, error)
	WriteQuery(opts WriteQueryOptions) error
	Mutate(ctx context.Context, opts MutationOptions) (*link.Result, error)
	Subscribe(ctx context.Context, opts SubscriptionOptions) (*Subscription, error)
}

var _ API = (*Client)(nil)

// Client runs operations through a link chain and keeps results in a cache
type Client struct {
	cache   cache.Cache
	link    link.Link
	name    string
	version string
	policy  FetchPolicy
	log     *logger.Logger
}

// New creates a Client
func New(opts Options) (*Client, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("%w: cache is required", ErrInvalidOptions)
	}
	if opts.Link == nil {
		return nil, fmt.Errorf("%w: link is required", ErrInvalidOptions)
	}

	policy, err := ParseFetchPolicy(string(opts.DefaultFetchPolicy))
	if err != nil {
		return nil, err
	}

	c := &Client{
		cache:   opts.Cache,
		link:    opts.Link,
		name:    opts.Name,
		version: opts.Version,
		policy:  policy,
		log:     logger.OrGlobal(opts.Logger).Component("client"),
	}

	c.log.Debug("Client created", map[string]interface{}{
		"name":         c.name,
		"version":      c.version,
		"fetch_policy": string(c.policy),
	})

	return c, nil
}

// Cache returns the client's cache
func (c *Client) Cache() cache.Cache {
	return c.cache
}

// Link returns the client's link chain
func (c *Client) Link() link.Link {
	return c.link
}

// DefaultFetchPolicy returns the policy used when an operation sets none
func (c *Client) DefaultFetchPolicy() FetchPolicy {
	return c.policy
}

// fetchPolicy resolves the policy of one operation, falling back to the default
func (c *Client) fetchPolicy(p FetchPolicy) (FetchPolicy, error) {
	if p == "" {
		return c.policy, nil
	}
	return ParseFetchPolicy(string(p))
}

// operation builds an operation carrying the client awareness context
func (c *Client) operation(typ link.OperationType, query string, vars map[string]interface{}, extra map[string]interface{}) link.Operation {
	op := link.NewOperation(typ, query, vars)
	for k, v := range extra {
		op.Context[k] = v
	}
	if c.name != "" {
		op.Context[link.ContextClientName] = c.name
	}
	if c.version != "" {
		op.Context[link.ContextClientVersion] = c.version
	}
	return op
}

// execute runs op through the link chain. GraphQL errors in the result are
// returned as the error, with the result still available.
func (c *Client) execute(ctx context.Context, op link.Operation) (*link.Result, error) {
	res, err := link.Execute(ctx, c.link, op)
	if err != nil {
		c.log.Error("Operation failed", map[string]interface{}{
			"operation": op.Name,
			"type":      string(op.Type),
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%s %s: %w", op.Type, displayName(op), err)
	}
	if res == nil {
		res = &link.Result{}
	}
	if err := res.Err(); err != nil {
		c.log.Warn("Operation returned errors", map[string]interface{}{
			"operation": op.Name,
			"errors":    len(res.Errors),
		})
		return res, err
	}
	return res, nil
}

func displayName(op link.Operation) string {
	if op.Name == "" {
		return "<anonymous>"
	}
	return op.Name
}
