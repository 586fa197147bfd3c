package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/gqlstore/internal/config"
	"github.com/drallgood/gqlstore/internal/logger"
	"github.com/drallgood/gqlstore/pkg/cache"
	"github.com/drallgood/gqlstore/pkg/client"
	"github.com/drallgood/gqlstore/pkg/link"
	"github.com/drallgood/gqlstore/pkg/store"
)

// emission is one printed line
type emission struct {
	Loading bool               `json:"loading,omitempty"`
	Data    json.RawMessage    `json:"data,omitempty"`
	Errors  link.GraphQLErrors `json:"errors,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// loadConfig builds the configuration from the config file, the environment
// and the command line flags, in increasing priority
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v := c.String("endpoint"); v != "" {
		cfg.Endpoint.URL = v
	}
	if v := c.String("ws-endpoint"); v != "" {
		cfg.Endpoint.WebSocketURL = v
	}
	if v := c.String("token"); v != "" {
		cfg.Endpoint.Token = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.Int("take"); v != 0 {
		cfg.Watch.Take = v
	}
	if v := c.Duration("wait"); v != 0 {
		cfg.Watch.Wait = v
	}
	if c.IsSet("poll") {
		cfg.Watch.PollInterval = c.Duration("poll")
	}
	if v := c.String("fetch-policy"); v != "" {
		cfg.Client.FetchPolicy = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.ForceSetup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: logger.ParseLogFormat(cfg.Logging.Format),
		Output: c.App.ErrWriter,
	})

	return cfg, nil
}

// newClient creates a client talking to the configured endpoints. The
// returned close function releases the WebSocket connection, if any.
func newClient(cfg *config.Config, log *logger.Logger) (*client.Client, func(), error) {
	policy, err := client.ParseFetchPolicy(cfg.Client.FetchPolicy)
	if err != nil {
		return nil, nil, err
	}

	httpCfg := link.HTTPConfigFromConfig(cfg)
	httpCfg.Logger = log
	httpLink, err := link.NewHTTP(httpCfg)
	if err != nil {
		return nil, nil, err
	}

	links := []link.Link{}
	closeFn := func() {}
	if cfg.Endpoint.WebSocketURL != "" {
		ws, err := link.NewWebSocket(link.WebSocketConfig{
			URL:    cfg.Endpoint.WebSocketURL,
			Token:  cfg.Endpoint.Token,
			Logger: log,
		})
		if err != nil {
			return nil, nil, err
		}
		links = append(links, ws)
		closeFn = func() {
			if err := ws.Close(); err != nil {
				log.Warn("Failed to close websocket link", map[string]interface{}{"error": err.Error()})
			}
		}
	}
	links = append(links, httpLink)

	c, err := client.New(client.Options{
		Cache:              cache.NewInMemoryCache(cache.WithLogger(log)),
		Link:               link.From(links...),
		Name:               cfg.Client.Name,
		Version:            cfg.Client.Version,
		DefaultFetchPolicy: policy,
		Logger:             log,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return c, closeFn, nil
}

func parseVars(s string) (map[string]interface{}, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(s), &vars); err != nil {
		return nil, fmt.Errorf("invalid --vars: %w", err)
	}
	return vars, nil
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get().Component("gqlwatch")

	vars, err := parseVars(c.String("vars"))
	if err != nil {
		return err
	}

	cl, closeFn, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	q := cl.WatchQuery(client.WatchQueryOptions{
		Query:        c.String("query"),
		Variables:    vars,
		PollInterval: cfg.Watch.PollInterval,
	})

	log.Info("Watching query", map[string]interface{}{
		"operation": link.OperationName(c.String("query")),
		"take":      cfg.Watch.Take,
		"wait":      cfg.Watch.Wait.String(),
	})

	results := collect[client.QueryResult](c.Context, q, cfg.Watch.Take, cfg.Watch.Wait)

	lines := make([]emission, 0, len(results))
	for _, r := range results {
		e := emission{Loading: r.Loading, Data: r.Data}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		lines = append(lines, e)
	}
	return printLines(c.App.Writer, lines)
}

func subscribeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Endpoint.WebSocketURL == "" {
		return &config.ConfigError{Field: "GQLSTORE_WS_ENDPOINT", Msg: "is required for subscriptions"}
	}
	log := logger.Get().Component("gqlwatch")

	vars, err := parseVars(c.String("vars"))
	if err != nil {
		return err
	}

	cl, closeFn, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sub, err := cl.Subscribe(ctx, client.SubscriptionOptions{
		Query:     c.String("query"),
		Variables: vars,
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	results := collect[*link.Result](ctx, sub, cfg.Watch.Take, cfg.Watch.Wait)

	lines := make([]emission, 0, len(results))
	for _, r := range results {
		lines = append(lines, emission{Data: r.Data, Errors: r.Errors})
	}
	return printLines(c.App.Writer, lines)
}

func collect[T any](ctx context.Context, src store.Subscribable[T], take int, wait time.Duration) []T {
	return store.Take(ctx, src, take, wait)
}

func printLines(w io.Writer, lines []emission) error {
	enc := json.NewEncoder(w)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
