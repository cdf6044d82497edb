package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remedystack/remedy-engine/internal/api"
	"github.com/remedystack/remedy-engine/internal/classifier"
	"github.com/remedystack/remedy-engine/internal/config"
	"github.com/remedystack/remedy-engine/internal/dashboard"
	"github.com/remedystack/remedy-engine/internal/executor"
	"github.com/remedystack/remedy-engine/internal/logsource"
	"github.com/remedystack/remedy-engine/internal/match"
	"github.com/remedystack/remedy-engine/internal/metrics"
	"github.com/remedystack/remedy-engine/internal/monitor"
	"github.com/remedystack/remedy-engine/internal/patterns"
	"github.com/remedystack/remedy-engine/internal/runner"
	"github.com/remedystack/remedy-engine/internal/store"
	"github.com/remedystack/remedy-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting remedy-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.StorePath()), 0o755); err != nil {
		logger.Error("failed to create data dir", slog.Any("error", err))
		os.Exit(1)
	}

	eventStore, err := store.Open(cfg.Paths.StorePath())
	if err != nil {
		logger.Error("failed to open event store", slog.Any("error", err))
		os.Exit(1)
	}
	defer eventStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	library := patterns.NewLibrary(logger, eventStore)
	if err := library.Seed(ctx, cfg.Paths.PatternsFile); err != nil {
		logger.Error("failed to seed pattern library", slog.Any("error", err))
		os.Exit(1)
	}

	dash, err := dashboard.New(logger, eventStore, cfg.Paths.DashboardDir)
	if err != nil {
		logger.Error("failed to create dashboard", slog.Any("error", err))
		os.Exit(1)
	}

	reader := logsource.NewReader(logger, cfg.Paths.ServicesLog(), cfg.Monitor.ReadWindow)
	exec := executor.New(logger, cfg.Paths.ScriptsDir, cfg.Executor.Timeout)
	mon := monitor.New(logger, eventStore, library, match.NewMatcher(logger), exec, reader, dash, cfg.Monitor.Retry)

	trainer := classifier.NewTrainer(logger, eventStore, classifier.Config{
		MinSamples:   cfg.Trainer.MinSamples,
		MaxFeatures:  cfg.Trainer.MaxFeatures,
		TestFraction: cfg.Trainer.TestFraction,
	}, cfg.Paths.ModelPath())

	archiver := logsource.NewArchiver(logger, cfg.Paths.LogsDir, cfg.Archive.RetentionDays)

	tasks := runner.New(logger)
	tasks.Add(runner.Task{
		Name:     "log-sweep",
		Interval: cfg.Monitor.CheckInterval,
		Run: func(ctx context.Context) error {
			_, _, err := mon.Sweep(ctx)
			return err
		},
	})
	tasks.Add(runner.Task{
		Name:     "retry-sweep",
		Interval: cfg.Monitor.RetryInterval,
		Run: func(ctx context.Context) error {
			_, err := mon.RetrySweep(ctx)
			return err
		},
	})
	tasks.Add(runner.Task{
		Name:     "train-classifier",
		Interval: cfg.Trainer.Interval,
		Run: func(ctx context.Context) error {
			report, err := trainer.Train(ctx)
			if err != nil {
				return err
			}
			metrics.SetTrainingAccuracy(report.Accuracy)
			return dash.WriteMLStatus(ctx, report)
		},
	})
	tasks.Add(runner.Task{
		Name:     "archive-logs",
		Interval: cfg.Archive.Interval,
		Run: func(context.Context) error {
			_, err := archiver.Archive()
			return err
		},
	})
	tasks.Add(runner.Task{
		Name:     "refresh-views",
		Interval: cfg.Monitor.CheckInterval,
		Run: func(ctx context.Context) error {
			lines, err := reader.ReadWindow()
			if err != nil {
				return err
			}
			// Newest first for the dashboard view.
			for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
				lines[i], lines[j] = lines[j], lines[i]
			}
			if err := dash.WriteRecentLogs(lines); err != nil {
				return err
			}
			samples, err := eventStore.RecentMetrics(ctx, 20)
			if err != nil {
				return err
			}
			return dash.WriteMetrics(samples)
		},
	})

	handlers := api.NewHandlers(logger, eventStore, mon, trainer)
	server, err := api.NewServer(cfg.Server, handlers)
	if err != nil {
		logger.Error("failed to create API server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("operator API listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("API server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go tasks.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("remedy-engine stopped")
}
