package patterns

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remedystack/remedy-engine/internal/models"
)

// Store abstracts pattern persistence. Patterns are append-only.
type Store interface {
	AppendPattern(ctx context.Context, p *models.Pattern) error
	ListPatterns(ctx context.Context) ([]models.Pattern, error)
	CountPatterns(ctx context.Context) (int, error)
}

// Library is the shared pattern collection consulted by the matcher and
// extended by operator feedback. All reads and writes go through the store,
// so every task sees new patterns as soon as they are acknowledged.
type Library struct {
	store  Store
	logger *slog.Logger
}

// NewLibrary constructs a Library backed by the given store.
func NewLibrary(logger *slog.Logger, store Store) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{store: store, logger: logger}
}

// List returns all known patterns in insertion order.
func (l *Library) List(ctx context.Context) ([]models.Pattern, error) {
	return l.store.ListPatterns(ctx)
}

// Add persists a new pattern and returns it with its assigned ID. The write
// completes before Add returns, so a pattern acknowledged here is visible to
// every subsequent matching pass.
func (l *Library) Add(ctx context.Context, issue, remediation string, confidence float64) (*models.Pattern, error) {
	if issue == "" || remediation == "" {
		return nil, errors.New("pattern requires both an issue template and a remediation template")
	}
	p := &models.Pattern{
		IssuePattern:        issue,
		RemediationTemplate: remediation,
		Confidence:          confidence,
		LastUsed:            time.Now().UTC(),
	}
	if err := l.store.AppendPattern(ctx, p); err != nil {
		return nil, fmt.Errorf("persist pattern: %w", err)
	}
	l.logger.Info("pattern added",
		slog.Int64("id", p.ID),
		slog.String("issue", p.IssuePattern),
		slog.String("remediation", p.RemediationTemplate))
	return p, nil
}

// Seed populates the store with the default pattern pack when it is empty.
// When path names a YAML pack file it is loaded in place of the built-in
// defaults; a missing file falls back to the defaults silently.
func (l *Library) Seed(ctx context.Context, path string) error {
	count, err := l.store.CountPatterns(ctx)
	if err != nil {
		return fmt.Errorf("check pattern count: %w", err)
	}
	if count > 0 {
		return nil
	}

	seeds := Defaults()
	if path != "" {
		loaded, err := LoadPack(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Debug("pattern pack not found, using built-in defaults", slog.String("path", path))
		case err != nil:
			return fmt.Errorf("load pattern pack: %w", err)
		default:
			seeds = loaded
		}
	}

	for i := range seeds {
		if err := l.store.AppendPattern(ctx, &seeds[i]); err != nil {
			return fmt.Errorf("seed pattern %q: %w", seeds[i].IssuePattern, err)
		}
	}
	l.logger.Info("pattern library seeded", slog.Int("patterns", len(seeds)))
	return nil
}

// Defaults returns the built-in pattern pack covering the common failure
// classes: crashes, resource exhaustion, database faults, network timeouts
// and permission errors.
func Defaults() []models.Pattern {
	now := time.Now().UTC()
	seeds := []struct {
		issue       string
		remediation string
		confidence  float64
	}{
		{"{service} process terminated unexpectedly with exit code {code}", "restart_service.sh {service}", 0.95},
		{"CPU usage for {service} exceeded threshold: {value}%", "optimize_service.sh {service} cpu", 0.9},
		{"Memory usage for {service} continually increasing, current: {value}MB", "restart_service.sh {service}", 0.95},
		{"Disk usage reached {value}%, clean up required", "cleanup_disk.sh", 0.98},
		{"Network usage for {service} exceeds normal patterns: {value}MB/s", "optimize_service.sh {service} network", 0.85},
		{"Database deadlock detected in transaction {txid}", "resolve_deadlock.sh {txid}", 0.9},
		{"Slow query detected in {service}: {query} (took {value}ms)", "optimize_query.sh \"{query}\"", 0.8},
		{"Connection timeout when {service} accessing {target}", "check_network.sh {service} {target}", 0.85},
		{"Permission denied for {service} accessing {resource}", "fix_permissions.sh {service} {resource}", 0.95},
	}

	patterns := make([]models.Pattern, 0, len(seeds))
	for _, s := range seeds {
		patterns = append(patterns, models.Pattern{
			IssuePattern:        s.issue,
			RemediationTemplate: s.remediation,
			Confidence:          s.confidence,
			LastUsed:            now,
		})
	}
	return patterns
}

type packFile struct {
	Patterns []packEntry `yaml:"patterns"`
}

type packEntry struct {
	Issue       string  `yaml:"issue"`
	Remediation string  `yaml:"remediation"`
	Confidence  float64 `yaml:"confidence"`
}

// LoadPack reads a YAML pattern pack from disk.
func LoadPack(path string) ([]models.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack packFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pattern pack %s: %w", path, err)
	}

	now := time.Now().UTC()
	patterns := make([]models.Pattern, 0, len(pack.Patterns))
	for _, entry := range pack.Patterns {
		if entry.Issue == "" || entry.Remediation == "" {
			return nil, fmt.Errorf("pattern pack %s: entry missing issue or remediation", path)
		}
		patterns = append(patterns, models.Pattern{
			IssuePattern:        entry.Issue,
			RemediationTemplate: entry.Remediation,
			Confidence:          entry.Confidence,
			LastUsed:            now,
		})
	}
	return patterns, nil
}
