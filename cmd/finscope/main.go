package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"finscope/internal/cache"
	"finscope/internal/cli"
	apphttp "finscope/internal/http"
	"finscope/internal/log"
	"finscope/internal/metrics"
	"finscope/internal/middleware/ratelimit"
	"finscope/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	store := cli.OpenStore(context.Background(), logger, cfg)
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	txConfig := services.DefaultTransactionServiceConfig()
	txConfig.CacheSize = cfg.SummaryCacheSize
	txConfig.CacheTTL = cfg.SummaryCacheTTL
	transactions := services.NewTransactionService(store, m, logger, txConfig)
	timeseries := services.NewTimeseriesService(store, m, logger)

	caches := cache.NewManager()
	if c := transactions.SummaryCache(); c != nil {
		caches.Register(c)
	}

	srvConfig := apphttp.DefaultConfig()
	srvConfig.Addr = ":" + cfg.Port
	srvConfig.DefaultSummaryDays = cfg.DefaultSummaryDays
	srvConfig.RateLimit = ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRPM,
		Burst:             cfg.RateLimitBurst,
	}

	srv := apphttp.NewServer(srvConfig, apphttp.Deps{
		Timeseries:   timeseries,
		Transactions: transactions,
		Health:       store,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       logger,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		caches.Stop()
		if c := transactions.SummaryCache(); c != nil {
			stats := c.Stats()
			logger.Info("Summary cache stats", "hits", stats.Hits, "misses", stats.Misses, "size", stats.Size)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})
	caches.StartCleanup(ctx, time.Minute)

	logger.Info("Starting finscope server",
		"port", cfg.Port,
		"db_path", store.Path(),
		"summary_cache_ttl", cfg.SummaryCacheTTL)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
