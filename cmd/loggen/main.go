// loggen is a synthetic service-fleet simulator. It appends weighted log
// traffic (including anomalies) to the services log and records resource
// metric samples, giving the remediation engine something to heal.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/remedystack/remedy-engine/internal/config"
	"github.com/remedystack/remedy-engine/internal/loggen"
	"github.com/remedystack/remedy-engine/internal/logsource"
	"github.com/remedystack/remedy-engine/internal/runner"
	"github.com/remedystack/remedy-engine/internal/store"
	"github.com/remedystack/remedy-engine/internal/utils"
)

func main() {
	var (
		configPath   string
		interval     time.Duration
		count        int
		anomalyRatio float64
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.DurationVar(&interval, "interval", 10*time.Second, "Delay between generation rounds")
	flag.IntVar(&count, "count", 10, "Log lines per round")
	flag.Float64Var(&anomalyRatio, "anomaly-ratio", 0.2, "Fraction of generated lines that are anomalies")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting loggen",
		slog.String("log", cfg.Paths.ServicesLog()),
		slog.Duration("interval", interval))

	writer, err := logsource.NewWriter(cfg.Paths.ServicesLog())
	if err != nil {
		logger.Error("failed to open services log", slog.Any("error", err))
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

	gen := loggen.New(logger, writer, eventStore, anomalyRatio)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tasks := runner.New(logger)
	tasks.Add(runner.Task{
		Name:     "generate-logs",
		Interval: interval,
		Run: func(context.Context) error {
			lines, err := gen.GenerateLogs(count)
			if err != nil {
				return err
			}
			logger.Debug("generated log lines", slog.Int("count", len(lines)))
			return nil
		},
	})
	tasks.Add(runner.Task{
		Name:     "generate-metrics",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := gen.GenerateMetrics(ctx)
			return err
		},
	})

	tasks.Run(ctx)
	logger.Info("loggen stopped")
}
