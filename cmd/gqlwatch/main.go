// Command gqlwatch watches GraphQL queries and subscriptions from the command
// line and prints what they emit as JSON lines.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/drallgood/gqlstore/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newApp() *cli.App {
	operationFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "query",
			Aliases:  []string{"q"},
			Usage:    "GraphQL document to run",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "vars",
			Usage: "Variables as a JSON object",
		},
		&cli.IntFlag{
			Name:  "take",
			Usage: "Number of emissions to print (default from config)",
		},
		&cli.DurationFlag{
			Name:  "wait",
			Usage: "How long to wait for emissions (default from config)",
		},
	}

	return &cli.App{
		Name:    "gqlwatch",
		Usage:   "Watch GraphQL queries and subscriptions",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "GraphQL HTTP endpoint",
				EnvVars: []string{"GQLSTORE_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "ws-endpoint",
				Usage:   "GraphQL WebSocket endpoint for subscriptions",
				EnvVars: []string{"GQLSTORE_WS_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token",
				EnvVars: []string{"GQLSTORE_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "watch",
				Usage: "Watch a query and print its results",
				Flags: append(operationFlags,
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "Poll the endpoint at this interval while watching",
					},
					&cli.StringFlag{
						Name:  "fetch-policy",
						Usage: "cache-first, network-only, cache-only or no-cache",
					},
				),
				Action: watchAction,
			},
			{
				Name:   "subscribe",
				Usage:  "Start a subscription and print its results",
				Flags:  operationFlags,
				Action: subscribeAction,
			},
		},
	}
}
