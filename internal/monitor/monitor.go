// Package monitor implements the detection and remediation loop: it tails
// the services log, opens incidents for anomalous lines, matches them
// against the pattern library and drives remediation scripts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/remedystack/remedy-engine/internal/config"
	"github.com/remedystack/remedy-engine/internal/match"
	"github.com/remedystack/remedy-engine/internal/metrics"
	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/patterns"
	"github.com/remedystack/remedy-engine/internal/utils"
)

// Store is the ledger surface the monitor needs.
type Store interface {
	FindIncidentByMessage(ctx context.Context, message string) (*models.Incident, error)
	CreateIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id int64) (*models.Incident, error)
	ListUnresolved(ctx context.Context) ([]models.Incident, error)
	MarkResolved(ctx context.Context, id int64, res models.Resolution) error
	RecordAttempt(ctx context.Context, id int64, at time.Time) error
}

// Library provides pattern lookup and operator-taught additions.
type Library interface {
	List(ctx context.Context) ([]models.Pattern, error)
	Add(ctx context.Context, issue, remediation string, confidence float64) (*models.Pattern, error)
}

// Matcher selects a remediation command for an incident message.
type Matcher interface {
	FindBest(patterns []models.Pattern, message string) *match.Match
}

// Executor runs remediation commands.
type Executor interface {
	Run(ctx context.Context, command string) models.ExecutionResult
}

// LogReader supplies the newest window of parsed log lines.
type LogReader interface {
	ReadWindow() ([]models.LogLine, error)
}

// Presenter refreshes operator-facing views after state changes. It may be
// nil when no dashboard is configured.
type Presenter interface {
	WriteActiveIncidents(ctx context.Context) error
	WriteSolutions(ctx context.Context) error
}

// ErrIncidentNotFound is returned when operator feedback names an unknown
// incident.
var ErrIncidentNotFound = errors.New("incident not found")

// Monitor owns the sweep, retry and operator-feedback operations. It holds
// no state of its own beyond collaborators; all incident state lives in the
// store.
type Monitor struct {
	store     Store
	library   Library
	matcher   Matcher
	executor  Executor
	reader    LogReader
	presenter Presenter
	retry     config.RetryPolicy
	logger    *slog.Logger

	now func() time.Time
}

// New constructs a Monitor.
func New(logger *slog.Logger, store Store, library Library, matcher Matcher, executor Executor, reader LogReader, presenter Presenter, retry config.RetryPolicy) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:     store,
		library:   library,
		matcher:   matcher,
		executor:  executor,
		reader:    reader,
		presenter: presenter,
		retry:     retry,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep reads the newest log window, opens incidents for anomalous lines
// not yet recorded and attempts remediation for each. It returns the number
// of incidents opened and resolved in this pass.
func (m *Monitor) Sweep(ctx context.Context) (found, resolved int, err error) {
	sweepID := uuid.NewString()
	logger := m.logger.With(slog.String("sweep_id", sweepID))
	metrics.ObserveSweep()

	lines, err := m.reader.ReadWindow()
	if err != nil {
		return 0, 0, fmt.Errorf("read log window: %w", err)
	}

	pats, err := m.library.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load patterns: %w", err)
	}
	metrics.SetPatternCount(len(pats))

	for _, line := range lines {
		if !line.Severity.Anomalous() {
			continue
		}

		existing, err := m.store.FindIncidentByMessage(ctx, line.Message)
		if err != nil {
			return found, resolved, err
		}
		if existing != nil {
			continue
		}

		inc := &models.Incident{
			Timestamp: line.Timestamp,
			Service:   line.Service,
			Category:  line.Category,
			Severity:  line.Severity,
			Message:   line.Message,
		}
		if err := m.store.CreateIncident(ctx, inc); err != nil {
			return found, resolved, err
		}
		found++
		metrics.ObserveIncidentCreated(string(inc.Severity))
		logger.Info("incident opened",
			slog.Int64("incident_id", inc.ID),
			slog.String("service", inc.Service),
			slog.String("severity", string(inc.Severity)),
			slog.String("message", inc.Message))

		matched := m.matcher.FindBest(pats, inc.Message)
		if matched == nil {
			logger.Warn("no remediation found",
				slog.Int64("incident_id", inc.ID),
				slog.String("message", inc.Message))
			continue
		}
		if m.remediate(ctx, logger, inc, matched.Command) {
			resolved++
		}
	}

	m.refreshViews(ctx)
	logger.Info("sweep complete",
		slog.Int("incidents_found", found),
		slog.Int("incidents_resolved", resolved))
	return found, resolved, nil
}

// RetrySweep re-attempts remediation for unresolved incidents, honouring
// the retry policy. New patterns taught since the incident opened are
// picked up here, which is how unmatched incidents eventually heal.
func (m *Monitor) RetrySweep(ctx context.Context) (int, error) {
	unresolved, err := m.store.ListUnresolved(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unresolved: %w", err)
	}
	if len(unresolved) == 0 {
		return 0, nil
	}

	pats, err := m.library.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load patterns: %w", err)
	}

	resolved := 0
	for i := range unresolved {
		inc := &unresolved[i]
		if !m.eligibleForRetry(inc) {
			continue
		}
		matched := m.matcher.FindBest(pats, inc.Message)
		if matched == nil {
			continue
		}
		if m.remediate(ctx, m.logger, inc, matched.Command) {
			resolved++
		}
	}

	if resolved > 0 {
		m.refreshViews(ctx)
	}
	m.logger.Info("retry sweep complete",
		slog.Int("unresolved", len(unresolved)),
		slog.Int("resolved", resolved))
	return resolved, nil
}

// eligibleForRetry applies the retry policy. Zero policy values keep the
// historical behaviour of unbounded immediate retries.
func (m *Monitor) eligibleForRetry(inc *models.Incident) bool {
	if m.retry.MaxAttempts > 0 && inc.Attempts >= m.retry.MaxAttempts {
		return false
	}
	if m.retry.Backoff > 0 && !inc.LastAttempt.IsZero() {
		if m.now().Sub(inc.LastAttempt) < m.retry.Backoff {
			return false
		}
	}
	return true
}

// Feedback is the outcome of an operator-supplied remediation.
type Feedback struct {
	Pattern  *models.Pattern
	Result   models.ExecutionResult
	Resolved bool
}

// SubmitRemediation records an operator-supplied remediation command for an
// incident: the incident's message is generalized into a new pattern with
// fixed confidence 0.8, and the command is executed immediately.
func (m *Monitor) SubmitRemediation(ctx context.Context, incidentID int64, command string) (*Feedback, error) {
	if command == "" {
		return nil, errors.New("empty remediation command")
	}

	inc, err := m.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrIncidentNotFound, incidentID)
	}

	template := patterns.Generalize(inc.Message)
	pattern, err := m.library.Add(ctx, template, command, 0.8)
	if err != nil {
		return nil, err
	}
	m.logger.Info("learned pattern from operator",
		slog.Int64("incident_id", incidentID),
		slog.String("issue", template),
		slog.String("remediation", command))

	result, ok := m.remediateResult(ctx, m.logger, inc, command)
	m.refreshViews(ctx)

	return &Feedback{Pattern: pattern, Result: result, Resolved: ok}, nil
}

// remediate executes a command for an incident and, on success, marks it
// resolved with an attached Resolution. Failure leaves the incident open
// for a later retry sweep.
func (m *Monitor) remediate(ctx context.Context, logger *slog.Logger, inc *models.Incident, command string) bool {
	_, ok := m.remediateResult(ctx, logger, inc, command)
	return ok
}

func (m *Monitor) remediateResult(ctx context.Context, logger *slog.Logger, inc *models.Incident, command string) (models.ExecutionResult, bool) {
	if err := m.store.RecordAttempt(ctx, inc.ID, m.now()); err != nil {
		logger.Error("cannot record attempt",
			slog.Int64("incident_id", inc.ID),
			slog.Any("error", err))
	}

	result := m.executor.Run(ctx, command)
	metrics.ObserveRemediation(result.Duration, result.Success)

	if !result.Success {
		logger.Error("remediation failed",
			slog.Int64("incident_id", inc.ID),
			slog.String("command", command),
			slog.String("output", result.Output))
		return result, false
	}

	resolution := models.Resolution{
		Command:         command,
		ExecutedAt:      m.now().UTC(),
		DurationSeconds: result.Duration.Seconds(),
		Success:         true,
		Output:          result.Output,
	}
	if err := m.store.MarkResolved(ctx, inc.ID, resolution); err != nil {
		logger.Error("cannot mark incident resolved",
			slog.Int64("incident_id", inc.ID),
			slog.Any("error", err))
		return result, false
	}
	inc.Resolved = true
	inc.Resolution = &resolution
	metrics.ObserveIncidentResolved()
	logger.Info("incident resolved",
		slog.Int64("incident_id", inc.ID),
		slog.String("command", command),
		slog.Float64("open_minutes", utils.DurationMinutes(inc.Timestamp, m.now())))
	return result, true
}

func (m *Monitor) refreshViews(ctx context.Context) {
	if m.presenter == nil {
		return
	}
	if err := m.presenter.WriteActiveIncidents(ctx); err != nil {
		m.logger.Error("cannot refresh active incidents view", slog.Any("error", err))
	}
	if err := m.presenter.WriteSolutions(ctx); err != nil {
		m.logger.Error("cannot refresh solutions view", slog.Any("error", err))
	}
}
