// Command loadtest scores generated customers against a running
// prediction service and checks every answer.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/propensity/internal/loadtest"
	"github.com/okian/propensity/pkg/logger"
)

// Default configuration constants.
const (
	defaultCustomers   = 1000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	app := &cli.App{
		Name:  "loadtest",
		Usage: "Drive the prediction service with generated customers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080", Usage: "Base URL of the service"},
			&cli.IntFlag{Name: "customers", Value: defaultCustomers, Usage: "Number of customers to generate and score"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * defaultWorkers, Usage: "Number of concurrent workers"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request timeout"},
			&cli.Uint64Flag{Name: "seed", Usage: "Seed for customer generation (0 picks one)"},
			&cli.StringFlag{Name: "output", Usage: "Write the scored customers to this JSON file"},
			&cli.StringFlag{Name: "log", Usage: "Also write logs to this file"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log every failed request"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Test failed: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := logger.Init(logger.WithFormat("console"), logger.WithFile(c.String("log"))); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(c.Context, defaultTestTimeout)
	defer cancel()

	_, err := loadtest.Run(ctx, &loadtest.Config{
		BaseURL:      c.String("url"),
		NumCustomers: c.Int("customers"),
		Workers:      c.Int("workers"),
		Timeout:      c.Duration("timeout"),
		Seed:         c.Uint64("seed"),
		OutputFile:   c.String("output"),
		Verbose:      c.Bool("verbose"),
	})
	return err
}
