package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"finscope/internal/amqp"
	"finscope/internal/cli"
	apphttp "finscope/internal/http"
	"finscope/internal/log"
	"finscope/internal/metrics"
	"finscope/internal/services"
	"finscope/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	logger.Info("Starting finscope-worker")

	store := cli.OpenStore(context.Background(), logger, cfg)
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ingestWorker := worker.NewIngestWorker(
		services.NewTimeseriesService(store, m, logger),
		services.NewTransactionService(store, m, logger, services.DefaultTransactionServiceConfig()),
		logger,
	)

	if err := ingestWorker.StartupCheck(context.Background(), store); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Prefetch: cfg.AMQPPrefetch,
		Metrics:  m,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ops := apphttp.NewOpsServer(":"+cfg.WorkerPort, store, reg, logger)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Error("Ops server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Consume(gctx, ingestWorker.HandleMessage)
	})
	g.Go(func() error {
		logger.Info("Serving worker health and metrics", "port", cfg.WorkerPort)
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
