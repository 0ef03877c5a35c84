// Package cli wires the urfave/cli application that runs the producer
// pipeline as a standalone process: parse flags, load YAML configuration,
// build the pipeline, then block until a termination signal triggers a
// graceful shutdown.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/usedatabrew/kinesis-producer/internal/awsclient"
	"github.com/usedatabrew/kinesis-producer/internal/config"
	"github.com/usedatabrew/kinesis-producer/internal/log"
	"github.com/usedatabrew/kinesis-producer/internal/producer"
)

// Build stamps, set via -ldflags at release time.
var (
	Version   = "unknown"
	DateBuilt = "unknown"
)

// App returns the full CLI app definition; exposed separately from Run so
// tests can exercise flag parsing without touching os.Args or signals.
func App() *cli.App {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "display version info, then exit",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML configuration file",
		},
		&cli.StringFlag{
			Name:  "log.level",
			Usage: "override the configured log level: off, error, warn, info, debug, trace",
		},
	}

	return &cli.App{
		Name:  "kinesis-producer",
		Usage: "a batching, aggregating, rate-limited producer for a sharded, Kinesis-shaped stream",
		Flags: flags,
		Action: func(c *cli.Context) error {
			if c.Bool("version") {
				fmt.Printf("Version: %v\nDate: %v\n", Version, DateBuilt)
				return nil
			}
			return runService(c)
		},
	}
}

// Run blocks until either the pipeline shuts down or a termination signal is
// received.
func Run(ctx context.Context) {
	if err := App().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("reading config file: %w", err)
	}

	conf := config.Default()
	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return config.Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return conf, nil
}

func runService(c *cli.Context) error {
	conf, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	if override := c.String("log.level"); override != "" {
		conf.LogLevel = strings.ToUpper(override)
	}

	logger := log.New(os.Stdout, conf.LoggerConfig())

	sess, err := config.GetSession(conf)
	if err != nil {
		return err
	}
	client := awsclient.New(sess)

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	builder := producer.NewPipelineBuilder(client, conf.StreamName, logger).
		WithShardRateLimit(conf.RPSPerShard, conf.BPSPerShard).
		WithBatch(conf.Batch.MaxRecords, conf.Batch.MaxBytes, conf.Batch.MaxWait).
		WithAggregate(conf.Aggregate.MaxRecords, conf.Aggregate.MaxBytes, conf.Aggregate.MaxWait).
		WithRetryBackoff(conf.RetryBackoff).
		WithRPCTimeout(conf.RPCTimeout).
		WithMaxInFlight(conf.MaxInFlight)

	_, handler, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	logger.Infof("producer pipeline started for stream %q", conf.StreamName)
	<-ctx.Done()

	logger.Infof("shutdown signal received, draining pipeline")
	handler.Shutdown()
	return nil
}
