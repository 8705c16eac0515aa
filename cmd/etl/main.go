package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/crypto-etl/internal/api"
	"github.com/rickgao/crypto-etl/internal/cache"
	"github.com/rickgao/crypto-etl/internal/config"
	"github.com/rickgao/crypto-etl/internal/database"
	"github.com/rickgao/crypto-etl/internal/extract"
	"github.com/rickgao/crypto-etl/internal/loader"
	"github.com/rickgao/crypto-etl/internal/logging"
	"github.com/rickgao/crypto-etl/internal/metrics"
	"github.com/rickgao/crypto-etl/internal/pipeline"
	"github.com/rickgao/crypto-etl/internal/retry"
	"github.com/rickgao/crypto-etl/internal/scheduler"
	"github.com/rickgao/crypto-etl/internal/transform"
	"github.com/rickgao/crypto-etl/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/etl.yaml", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit (default mode)")
	schedule := flag.Bool("schedule", false, "run now, then every schedule.interval until stopped")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *once && *schedule {
		fmt.Fprintln(os.Stderr, "-once and -schedule are mutually exclusive")
		os.Exit(2)
	}

	// Load .env and configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger, logFile, err := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Dir, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	mode := "once"
	if *schedule {
		mode = "schedule"
	}
	logger.Info("starting crypto-etl", append(version.LogArgs(), "mode", mode, "config", *configPath)...)

	// Cancel on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := run(ctx, cfg, *schedule, logger)

	stop()
	logFile.Close()
	os.Exit(code)
}

// run wires the pipeline and executes it in the requested mode. It returns
// the process exit code.
func run(ctx context.Context, cfg *config.Config, schedule bool, logger *slog.Logger) int {
	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db := database.NewManager(cfg.Database, logger)
	if err := db.Initialize(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Shutdown()

	serverVersion, err := db.ServerVersion(ctx)
	if err != nil {
		logger.Error("failed to query database version", "error", err)
		return 1
	}
	logger.Info("database connected", "server_version", serverVersion)

	// Create API client
	client := api.NewClient(
		cfg.Source.BaseURL,
		cfg.Source.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Source.Timeout),
	)

	// Check upstream status; a failed ping is not fatal since the first
	// extraction retries anyway.
	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Source.Timeout)
	if pong, err := client.Ping(pingCtx); err != nil {
		logger.Warn("upstream ping failed", "url", cfg.Source.BaseURL, "error", err)
	} else {
		logger.Info("upstream reachable", "gecko_says", pong.GeckoSays)
	}
	pingCancel()

	var archive extract.Archiver
	if cfg.Archive.IsEnabled() {
		archive = extract.NewDirArchive(cfg.Archive.Dir)
	}
	extractor := extract.New(client, api.MarketsOptions{
		VsCurrency: cfg.Source.VsCurrency,
		Order:      cfg.Source.Order,
		PerPage:    cfg.Source.PerPage,
		Page:       cfg.Source.Page,
	}, archive, logger)

	ldr := loader.New(loader.Config{BatchSize: cfg.Loader.BatchSize}, db, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(reg, db)

	opts := []pipeline.Option{
		pipeline.WithSchema(db),
		pipeline.WithObserver(collector),
		pipeline.WithRetry(retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		pipeline.WithLogger(logger),
	}

	var latest LatestReader
	if cfg.Cache.Addr != "" {
		pub := cache.NewPublisher(cache.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		}, logger)
		defer pub.Close()

		if err := pub.Ping(ctx); err != nil {
			logger.Warn("latest-snapshot cache unreachable", "addr", cfg.Cache.Addr, "error", err)
		}
		opts = append(opts, pipeline.WithPublisher(pub))
		latest = pub
	}

	p := pipeline.New(extractor, transform.Transform, ldr, opts...)

	if !schedule {
		res := p.Run(ctx)
		if !res.Succeeded() {
			fmt.Fprintf(os.Stderr, "pipeline run failed: %v\n", res.Err)
			return 1
		}
		return 0
	}

	return runScheduled(ctx, cfg, p, db, latest, reg, logger)
}

func runScheduled(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, db *database.Manager, latest LatestReader, reg *prometheus.Registry, logger *slog.Logger) int {
	sched := scheduler.New(scheduler.Config{Interval: cfg.Schedule.Interval}, p, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createOpsHandler(db, p, sched, latest, reg, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting ops server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}

		// Wait for shutdown
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopErr := sched.Stop(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", "error", err)
		}
		return stopErr
	})

	if err := g.Wait(); err != nil {
		logger.Error("etl stopped with error", "error", err)
		return 1
	}

	logger.Info("etl stopped")
	return 0
}
