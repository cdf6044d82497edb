// Package loggen produces synthetic service logs and resource metrics for
// exercising the remediation loop in development environments.
package loggen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/remedystack/remedy-engine/internal/models"
)

// Services is the simulated service fleet.
var Services = []string{
	"web_server", "database", "cache", "auth_service",
	"file_service", "backup_service", "network_service",
}

// logType carries the category weighting used for normal traffic.
type logType struct {
	name   string
	weight float64
}

var logTypes = []logType{
	{"service_status", 0.3},
	{"resource_usage", 0.4},
	{"error", 0.15},
	{"security", 0.1},
	{"performance", 0.05},
}

// MetricsStore persists generated resource samples.
type MetricsStore interface {
	RecordMetrics(ctx context.Context, samples []models.MetricSample) error
}

// LogSink receives generated log lines.
type LogSink interface {
	Append(line models.LogLine) error
}

// Generator emits randomized log lines and metric samples with a
// configurable share of anomalies.
type Generator struct {
	sink         LogSink
	store        MetricsStore
	logger       *slog.Logger
	anomalyRatio float64
	rng          *rand.Rand
}

// New constructs a Generator. anomalyRatio is the fraction of generated log
// lines that describe anomalies (clamped to [0,1]).
func New(logger *slog.Logger, sink LogSink, store MetricsStore, anomalyRatio float64) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if anomalyRatio < 0 {
		anomalyRatio = 0
	}
	if anomalyRatio > 1 {
		anomalyRatio = 1
	}
	return &Generator{
		sink:         sink,
		store:        store,
		logger:       logger,
		anomalyRatio: anomalyRatio,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) pickService() string {
	return Services[g.rng.Intn(len(Services))]
}

func (g *Generator) pickLogType() string {
	r := g.rng.Float64()
	var cum float64
	for _, lt := range logTypes {
		cum += lt.weight
		if r < cum {
			return lt.name
		}
	}
	return logTypes[len(logTypes)-1].name
}

// GenerateLogs appends count log lines to the sink and returns them.
func (g *Generator) GenerateLogs(count int) ([]models.LogLine, error) {
	if count <= 0 {
		count = 10
	}
	anomalies := int(float64(count) * g.anomalyRatio)
	if anomalies < 1 {
		anomalies = 1
	}
	normal := count - anomalies

	lines := make([]models.LogLine, 0, count)
	for i := 0; i < normal; i++ {
		lines = append(lines, g.normalLine())
	}
	for i := 0; i < anomalies; i++ {
		lines = append(lines, g.anomalyLine())
	}

	for _, line := range lines {
		if err := g.sink.Append(line); err != nil {
			return lines, fmt.Errorf("append log line: %w", err)
		}
	}
	return lines, nil
}

func (g *Generator) normalLine() models.LogLine {
	service := g.pickService()
	category := g.pickLogType()

	var message string
	severity := models.SeverityInfo
	switch category {
	case "service_status":
		message = fmt.Sprintf("%s is running normally", service)
	case "resource_usage":
		resources := []string{"CPU", "memory", "disk", "network"}
		message = fmt.Sprintf("%s usage for %s: %.1f%%",
			resources[g.rng.Intn(len(resources))], service, 10+g.rng.Float64()*50)
	case "error":
		message = fmt.Sprintf("Handled exception in %s: Operation completed with retry", service)
		severity = models.SeverityWarning
	case "security":
		message = fmt.Sprintf("Authentication successful for user on %s", service)
	default: // performance
		ops := []string{"query", "request", "transaction"}
		message = fmt.Sprintf("%s completed in %.1fms on %s",
			ops[g.rng.Intn(len(ops))], 10+g.rng.Float64()*190, service)
	}

	return models.LogLine{
		Timestamp: time.Now(),
		Service:   service,
		Category:  category,
		Severity:  severity,
		Message:   message,
	}
}

func (g *Generator) anomalyLine() models.LogLine {
	service := g.pickService()

	type anomaly struct {
		category string
		severity models.Severity
		message  func() string
	}
	anomalies := []anomaly{
		{"service_status", models.SeverityCritical, func() string {
			return fmt.Sprintf("%s process terminated unexpectedly with exit code %d", service, 1+g.rng.Intn(255))
		}},
		{"resource_usage", models.SeverityWarning, func() string {
			return fmt.Sprintf("CPU usage for %s exceeded threshold: %.1f%%", service, 85+g.rng.Float64()*15)
		}},
		{"resource_usage", models.SeverityWarning, func() string {
			return fmt.Sprintf("Memory usage for %s continually increasing, current: %.1fMB", service, 500+g.rng.Float64()*1500)
		}},
		{"resource_usage", models.SeverityCritical, func() string {
			return fmt.Sprintf("Disk usage reached %.1f%%, clean up required", 85+g.rng.Float64()*14)
		}},
		{"error", models.SeverityCritical, func() string {
			return fmt.Sprintf("Database deadlock detected in transaction tx-%d", 1000+g.rng.Intn(9000))
		}},
		{"error", models.SeverityError, func() string {
			return fmt.Sprintf("Connection timeout when %s accessing %s", service, g.pickService())
		}},
		{"security", models.SeverityError, func() string {
			dirs := []string{"users", "config", "content", "media"}
			return fmt.Sprintf("Permission denied for %s accessing /data/%s", service, dirs[g.rng.Intn(len(dirs))])
		}},
		{"performance", models.SeverityWarning, func() string {
			tables := []string{"users", "orders", "products"}
			return fmt.Sprintf("Slow query detected in %s: SELECT * FROM %s WHERE id = %d (took %.1fms)",
				service, tables[g.rng.Intn(len(tables))], 1+g.rng.Intn(1000), 1000+g.rng.Float64()*4000)
		}},
	}

	a := anomalies[g.rng.Intn(len(anomalies))]
	return models.LogLine{
		Timestamp: time.Now(),
		Service:   service,
		Category:  a.category,
		Severity:  a.severity,
		Message:   a.message(),
	}
}

// GenerateMetrics emits one resource sample per service, records the batch
// and writes threshold-breach log lines for spiking services. Roughly 5% of
// samples carry a spike.
func (g *Generator) GenerateMetrics(ctx context.Context) ([]models.MetricSample, error) {
	now := time.Now().UTC()
	samples := make([]models.MetricSample, 0, len(Services))
	for _, service := range Services {
		sample := models.MetricSample{
			Timestamp: now,
			Service:   service,
			CPU:       10 + g.rng.Float64()*20,
			Memory:    20 + g.rng.Float64()*30,
			Disk:      30 + g.rng.Float64()*30,
			Network:   5 + g.rng.Float64()*20,
		}

		if g.rng.Float64() < 0.05 {
			spike := 85 + g.rng.Float64()*15
			switch g.rng.Intn(4) {
			case 0:
				sample.CPU = spike
			case 1:
				sample.Memory = spike
			case 2:
				sample.Disk = spike
			default:
				sample.Network = spike
			}
		}
		samples = append(samples, sample)

		g.emitThresholdLines(sample)
	}

	if g.store != nil {
		if err := g.store.RecordMetrics(ctx, samples); err != nil {
			return samples, fmt.Errorf("record metrics: %w", err)
		}
	}
	return samples, nil
}

// emitThresholdLines mirrors resource spikes into the services log so the
// monitor can pick them up as incidents.
func (g *Generator) emitThresholdLines(sample models.MetricSample) {
	if sample.CPU > 80 {
		g.append(sample.Service, "resource_usage", models.SeverityWarning,
			fmt.Sprintf("CPU usage for %s exceeded threshold: %.1f%%", sample.Service, sample.CPU))
	}
	if sample.Memory > 80 {
		g.append(sample.Service, "resource_usage", models.SeverityWarning,
			fmt.Sprintf("Memory usage for %s continually increasing, current: %.1fMB", sample.Service, sample.Memory*10))
	}
	if sample.Disk > 80 {
		g.append(sample.Service, "resource_usage", models.SeverityCritical,
			fmt.Sprintf("Disk usage reached %.1f%%, clean up required", sample.Disk))
	}
}

func (g *Generator) append(service, category string, severity models.Severity, message string) {
	line := models.LogLine{
		Timestamp: time.Now(),
		Service:   service,
		Category:  category,
		Severity:  severity,
		Message:   message,
	}
	if err := g.sink.Append(line); err != nil {
		g.logger.Error("cannot append threshold log line", slog.Any("error", err))
	}
}
