package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	bench "github.com/gatewaylab/gatewaybench"
	"github.com/gatewaylab/gatewaybench/internal/config"
	"github.com/gatewaylab/gatewaybench/internal/metrics"
	"github.com/gatewaylab/gatewaybench/internal/util"
	"github.com/gatewaylab/gatewaybench/requester"
)

const (
	targetHTTP  = "http"
	targetRedis = "redis"
	targetNATS  = "nats"
	targetNOOP  = "noop"
)

type runOptions struct {
	Host            string
	Target          string
	Iterations      uint64
	CSVPrefix       string
	HTMLFile        string
	Distribution    string
	RedisKey        string
	NATSSubject     string
	MetricsEndpoint string
}

func newRunCmd(cfg *config.Config, logger func() *logrus.Entry) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless load test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runLoadTest(ctx, cfg, opts, logger(), cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "http://localhost:8080", "gateway host, redis address or NATS url depending on --target")
	flags.StringVar(&opts.Target, "target", targetHTTP, "transport used to send the payload: http, redis, nats or noop")
	flags.Uint64Var(&opts.Iterations, "iterations", 0, "requests per user, 0 runs until --run-time elapses")
	flags.StringVar(&opts.CSVPrefix, "csv", "", "write CSV reports using this path prefix")
	flags.StringVar(&opts.HTMLFile, "html", "", "write the HTML report to this file")
	flags.StringVar(&opts.Distribution, "distribution", "", "write the latency distribution to this file")
	flags.StringVar(&opts.RedisKey, "redis-key", "gateway:process", "list the redis target pushes to")
	flags.StringVar(&opts.NATSSubject, "nats-subject", "gateway.process", "subject the nats target sends requests to")
	flags.StringVar(&opts.MetricsEndpoint, "metrics-endpoint", "", "serve prometheus metrics on this address during the run")
	return cmd
}

func newFactory(opts runOptions, timeout time.Duration) (bench.RequesterFactory, error) {
	switch opts.Target {
	case targetHTTP:
		factory := requester.NewProcessRequesterFactory(opts.Host)
		factory.Timeout = timeout
		return factory, nil
	case targetRedis:
		return &requester.RedisRequesterFactory{
			Addr:    opts.Host,
			Key:     opts.RedisKey,
			Payload: requester.DefaultPayload,
		}, nil
	case targetNATS:
		return &requester.NATSRequesterFactory{
			URL:     opts.Host,
			Subject: opts.NATSSubject,
			Payload: requester.DefaultPayload,
			Timeout: timeout,
		}, nil
	case targetNOOP:
		return &requester.NOOPRequesterFactory{}, nil
	default:
		return nil, errors.Errorf("unknown target %q", opts.Target)
	}
}

func runLoadTest(ctx context.Context, cfg *config.Config, opts runOptions, logger *logrus.Entry, out io.Writer) error {
	factory, err := newFactory(opts, cfg.RequestTimeout)
	if err != nil {
		return err
	}
	pacing, err := bench.Between(cfg.WaitMin, cfg.WaitMax)
	if err != nil {
		return err
	}

	registry := metrics.MakeRegistry()
	if opts.MetricsEndpoint != "" {
		server := &http.Server{Addr: opts.MetricsEndpoint, Handler: registry.HTTPHandler}
		util.UnrecoverablePanicGroup.Log(logger).Counter(registry.PanicsCounter()).Go(func() {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		})
		defer server.Close()
	}

	b, err := bench.NewBenchmark(factory, bench.Options{
		Users:           cfg.Users,
		SpawnRate:       cfg.SpawnRate,
		Duration:        cfg.RunTime,
		Iterations:      opts.Iterations,
		Pacing:          pacing,
		HistoryInterval: cfg.HistoryInterval,
		Observer:        registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	summary, err := b.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, summary)

	if opts.CSVPrefix != "" {
		if err := summary.WriteCSV(opts.CSVPrefix); err != nil {
			return errors.Wrap(err, "write csv reports")
		}
	}
	if opts.HTMLFile != "" {
		if err := summary.WriteHTMLFile(opts.HTMLFile); err != nil {
			return errors.Wrap(err, "write html report")
		}
	}
	if opts.Distribution != "" {
		if err := summary.GenerateLatencyDistribution(nil, opts.Distribution); err != nil {
			return errors.Wrap(err, "write latency distribution")
		}
	}
	return nil
}
