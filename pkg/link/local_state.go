package link

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/cache"
)

// Resolver produces data for a client-side operation
type Resolver func(ctx context.Context, op Operation, c cache.Cache) (json.RawMessage, error)

// Resolvers maps operation names to resolvers
type Resolvers map[string]Resolver

// LocalStateConfig configures a LocalState link
type LocalStateConfig struct {
	// Cache is where client-only data lives (required)
	Cache cache.Cache
	// Resolvers handle named operations without leaving the process
	Resolvers Resolvers
	// Defaults are written to the cache when the link is created
	Defaults map[cache.Key]json.RawMessage
	// Logger defaults to the global logger
	Logger *logger.Logger
}

// LocalState resolves client state before anything reaches the network.
// Operations with a resolver are answered by it; queries marked @client are
// answered from the cache; everything else is forwarded.
type LocalState struct {
	cache     cache.Cache
	resolvers Resolvers
	log       *logger.Logger
}

// NewLocalState creates a LocalState link and seeds its defaults
func NewLocalState(cfg LocalStateConfig) (*LocalState, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("local state link: cache is required")
	}
	resolvers := cfg.Resolvers
	if resolvers == nil {
		resolvers = Resolvers{}
	}
	for key, data := range cfg.Defaults {
		cfg.Cache.Write(key, data)
	}
	return &LocalState{
		cache:     cfg.Cache,
		resolvers: resolvers,
		log:       logger.OrGlobal(cfg.Logger).Component("local_state"),
	}, nil
}

// Request implements Link
func (l *LocalState) Request(ctx context.Context, op Operation, next Next) (*Result, error) {
	if resolve, ok := l.resolvers[op.Name]; ok && op.Name != "" {
		l.log.Debug("Resolving operation locally", map[string]interface{}{
			"operation": op.Name,
			"type":      string(op.Type),
		})
		data, err := resolve(ctx, op, l.cache)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", op.Name, err)
		}
		return &Result{Data: data}, nil
	}

	if op.Type == Query && isClientOnly(op.Query) {
		data, err := l.cache.Read(cache.KeyFor(op.Query, op.Variables), false)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnresolved, op.Name, err)
		}
		return &Result{Data: data}, nil
	}

	return next(ctx, op)
}

func isClientOnly(query string) bool {
	return strings.Contains(query, "@client")
}
