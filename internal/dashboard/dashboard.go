// Package dashboard renders plain-text status snapshots for operators.
// Each file is rewritten whole on every refresh; readers only ever see a
// complete view.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/remedystack/remedy-engine/internal/logsource"
	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/utils"
)

const (
	recentLogsFile      = "recent_logs.txt"
	activeIncidentsFile = "active_incidents.txt"
	systemMetricsFile   = "system_metrics.txt"
	solutionsFile       = "solutions.txt"
	mlStatusFile        = "ml_status.txt"

	recentLogsCap = 20
	separator     = "--------------------------------------------------------------------------------"
	doubleRule    = "================================================================================"
)

// Store is the slice of the event ledger the dashboard renders from.
type Store interface {
	ListUnresolved(ctx context.Context) ([]models.Incident, error)
	CountIncidents(ctx context.Context) (total, resolved int, err error)
	RecentResolved(ctx context.Context, limit int) ([]models.Incident, error)
}

// Dashboard writes the snapshot files into a single directory.
type Dashboard struct {
	dir    string
	store  Store
	logger *slog.Logger
}

// New constructs a Dashboard rooted at dir.
func New(logger *slog.Logger, store Store, dir string) (*Dashboard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dashboard dir: %w", err)
	}
	return &Dashboard{dir: dir, store: store, logger: logger}, nil
}

func (d *Dashboard) write(name, content string) error {
	if err := os.WriteFile(filepath.Join(d.dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// WriteRecentLogs prepends the new lines to the recent-logs view, keeping
// the newest entries up to the cap.
func (d *Dashboard) WriteRecentLogs(lines []models.LogLine) error {
	path := filepath.Join(d.dir, recentLogsFile)

	var existing []string
	if data, err := os.ReadFile(path); err == nil {
		for _, l := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			if l != "" {
				existing = append(existing, l)
			}
		}
	}

	var sb strings.Builder
	written := 0
	for _, line := range lines {
		if written >= recentLogsCap {
			break
		}
		sb.WriteString(logsource.FormatLine(line))
		sb.WriteString("\n")
		written++
	}
	for _, l := range existing {
		if written >= recentLogsCap {
			break
		}
		sb.WriteString(l)
		sb.WriteString("\n")
		written++
	}
	return d.write(recentLogsFile, sb.String())
}

// WriteActiveIncidents renders every unresolved incident.
func (d *Dashboard) WriteActiveIncidents(ctx context.Context) error {
	incidents, err := d.store.ListUnresolved(ctx)
	if err != nil {
		return fmt.Errorf("list unresolved: %w", err)
	}

	if len(incidents) == 0 {
		return d.write(activeIncidentsFile, "No active incidents\n")
	}

	var sb strings.Builder
	for _, inc := range incidents {
		fmt.Fprintf(&sb, "ID: %d\n", inc.ID)
		fmt.Fprintf(&sb, "Time: %s\n", inc.Timestamp.Format(utils.LogTimeLayout))
		fmt.Fprintf(&sb, "Service: %s\n", inc.Service)
		fmt.Fprintf(&sb, "Type: %s\n", inc.Category)
		fmt.Fprintf(&sb, "Severity: %s\n", inc.Severity)
		fmt.Fprintf(&sb, "Message: %s\n", inc.Message)
		sb.WriteString(separator + "\n\n")
	}
	return d.write(activeIncidentsFile, sb.String())
}

// WriteMetrics renders the latest per-service resource samples as a table.
func (d *Dashboard) WriteMetrics(samples []models.MetricSample) error {
	var sb strings.Builder
	sb.WriteString("service  cpu_usage  memory_usage  disk_usage  network_usage\n")
	for _, m := range samples {
		fmt.Fprintf(&sb, "%-14s  %9.2f  %12.2f  %10.2f  %13.2f\n",
			m.Service, m.CPU, m.Memory, m.Disk, m.Network)
	}
	return d.write(systemMetricsFile, sb.String())
}

// WriteSolutions renders the resolved-incident summary with the most
// recent resolutions.
func (d *Dashboard) WriteSolutions(ctx context.Context) error {
	_, resolvedCount, err := d.store.CountIncidents(ctx)
	if err != nil {
		return fmt.Errorf("count incidents: %w", err)
	}
	recent, err := d.store.RecentResolved(ctx, 10)
	if err != nil {
		return fmt.Errorf("recent resolved: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Applied Solutions: %d total\n", resolvedCount)
	sb.WriteString(doubleRule + "\n\n")

	if len(recent) == 0 {
		sb.WriteString("No resolved incidents\n")
		return d.write(solutionsFile, sb.String())
	}

	for _, inc := range recent {
		fmt.Fprintf(&sb, "%s - %s - %s\n",
			inc.Timestamp.Format(utils.LogTimeLayout), inc.Service, inc.Message)
		if inc.Resolution != nil {
			fmt.Fprintf(&sb, "  Solution: %s\n", inc.Resolution.Command)
			fmt.Fprintf(&sb, "  Execution time: %.2fs\n", inc.Resolution.DurationSeconds)
			if inc.Resolution.Output != "" {
				output := inc.Resolution.Output
				if len(output) > 100 {
					output = output[:100] + "..."
				}
				fmt.Fprintf(&sb, "  Output: %s\n", output)
			}
		}
		sb.WriteString(separator + "\n\n")
	}
	return d.write(solutionsFile, sb.String())
}

// WriteMLStatus renders the advisory classifier status together with the
// latest resolved incidents.
func (d *Dashboard) WriteMLStatus(ctx context.Context, report models.TrainReport) error {
	var sb strings.Builder
	sb.WriteString("ML Model Status\n")
	sb.WriteString("==============\n\n")
	fmt.Fprintf(&sb, "Model type: %s\n", report.ModelType)
	fmt.Fprintf(&sb, "Training samples: %d\n", report.SampleCount)
	fmt.Fprintf(&sb, "Model accuracy: %.2f\n", report.Accuracy)
	fmt.Fprintf(&sb, "Status: %s\n\n", report.Status)

	recent, err := d.store.RecentResolved(ctx, 5)
	if err != nil {
		d.logger.Error("cannot load recent incidents for ml status", slog.Any("error", err))
	} else if len(recent) > 0 {
		sb.WriteString("Recent Resolved Incidents\n")
		sb.WriteString("------------------------\n")
		for _, inc := range recent {
			fmt.Fprintf(&sb, "Service: %s\n", inc.Service)
			fmt.Fprintf(&sb, "Message: %s\n", inc.Message)
			fmt.Fprintf(&sb, "Type: %s\n", inc.Category)
			if inc.Resolution != nil {
				fmt.Fprintf(&sb, "Solution: %s\n", inc.Resolution.Command)
				fmt.Fprintf(&sb, "Execution time: %.2fs\n", inc.Resolution.DurationSeconds)
			}
			sb.WriteString("\n")
		}
	}
	return d.write(mlStatusFile, sb.String())
}
