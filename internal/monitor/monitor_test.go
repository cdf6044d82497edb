package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/remedystack/remedy-engine/internal/config"
	"github.com/remedystack/remedy-engine/internal/match"
	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/patterns"
)

type memStore struct {
	incidents []*models.Incident
	nextID    int64
}

func (s *memStore) FindIncidentByMessage(_ context.Context, message string) (*models.Incident, error) {
	for _, inc := range s.incidents {
		if inc.Message == message {
			return inc, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateIncident(_ context.Context, inc *models.Incident) error {
	s.nextID++
	inc.ID = s.nextID
	s.incidents = append(s.incidents, inc)
	return nil
}

func (s *memStore) GetIncident(_ context.Context, id int64) (*models.Incident, error) {
	for _, inc := range s.incidents {
		if inc.ID == id {
			return inc, nil
		}
	}
	return nil, errors.New("no rows")
}

func (s *memStore) ListUnresolved(context.Context) ([]models.Incident, error) {
	var out []models.Incident
	for _, inc := range s.incidents {
		if !inc.Resolved {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (s *memStore) MarkResolved(ctx context.Context, id int64, res models.Resolution) error {
	inc, err := s.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	inc.Resolved = true
	inc.Resolution = &res
	return nil
}

func (s *memStore) RecordAttempt(ctx context.Context, id int64, at time.Time) error {
	inc, err := s.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	inc.Attempts++
	inc.LastAttempt = at
	return nil
}

type memLibrary struct {
	patterns []models.Pattern
	nextID   int64
}

func (l *memLibrary) List(context.Context) ([]models.Pattern, error) {
	return append([]models.Pattern(nil), l.patterns...), nil
}

func (l *memLibrary) Add(_ context.Context, issue, remediation string, confidence float64) (*models.Pattern, error) {
	l.nextID++
	p := models.Pattern{
		ID:                  l.nextID,
		IssuePattern:        issue,
		RemediationTemplate: remediation,
		Confidence:          confidence,
		LastUsed:            time.Now().UTC(),
	}
	l.patterns = append(l.patterns, p)
	return &p, nil
}

type fakeExecutor struct {
	commands []string
	fail     bool
}

func (e *fakeExecutor) Run(_ context.Context, command string) models.ExecutionResult {
	e.commands = append(e.commands, command)
	if e.fail {
		return models.ExecutionResult{Success: false, Output: "exit status 1"}
	}
	return models.ExecutionResult{Success: true, Duration: 10 * time.Millisecond, Output: "ok"}
}

type fakeReader struct {
	lines []models.LogLine
}

func (r *fakeReader) ReadWindow() ([]models.LogLine, error) {
	return r.lines, nil
}

func line(severity models.Severity, message string) models.LogLine {
	return models.LogLine{
		Timestamp: time.Now().UTC(),
		Service:   "web_server",
		Category:  "error",
		Severity:  severity,
		Message:   message,
	}
}

func newTestMonitor(store *memStore, lib *memLibrary, exec *fakeExecutor, reader *fakeReader, retry config.RetryPolicy) *Monitor {
	return New(nil, store, lib, match.NewMatcher(nil), exec, reader, nil, retry)
}

func TestSweepOpensAndResolves(t *testing.T) {
	store := &memStore{}
	lib := &memLibrary{patterns: patterns.Defaults()}
	exec := &fakeExecutor{}
	reader := &fakeReader{lines: []models.LogLine{
		line(models.SeverityInfo, "web_server is running normally"),
		line(models.SeverityCritical, "Disk usage reached 95.5%, clean up required"),
		line(models.SeverityError, "Mysterious condition nobody has seen"),
	}}

	m := newTestMonitor(store, lib, exec, reader, config.RetryPolicy{})
	found, resolved, err := m.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if found != 2 {
		t.Fatalf("expected 2 incidents opened, got %d", found)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 incident resolved, got %d", resolved)
	}
	if len(exec.commands) != 1 || exec.commands[0] != "cleanup_disk.sh" {
		t.Fatalf("unexpected commands: %v", exec.commands)
	}

	diskIncident, _ := store.FindIncidentByMessage(context.Background(), "Disk usage reached 95.5%, clean up required")
	if diskIncident == nil || !diskIncident.Resolved {
		t.Fatal("disk incident should be resolved")
	}
	if diskIncident.Resolution == nil || diskIncident.Resolution.Command != "cleanup_disk.sh" {
		t.Fatalf("unexpected resolution: %+v", diskIncident.Resolution)
	}

	mystery, _ := store.FindIncidentByMessage(context.Background(), "Mysterious condition nobody has seen")
	if mystery == nil || mystery.Resolved {
		t.Fatal("unmatched incident must stay open")
	}
}

func TestSweepDeduplicatesByMessage(t *testing.T) {
	store := &memStore{}
	lib := &memLibrary{}
	exec := &fakeExecutor{fail: true}
	reader := &fakeReader{lines: []models.LogLine{
		line(models.SeverityError, "CPU usage for web_server exceeded threshold: 99.1%"),
	}}

	m := newTestMonitor(store, lib, exec, reader, config.RetryPolicy{})
	for i := 0; i < 3; i++ {
		if _, _, err := m.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep %d: %v", i, err)
		}
	}
	if len(store.incidents) != 1 {
		t.Fatalf("expected exactly 1 incident despite repeated sweeps, got %d", len(store.incidents))
	}
}

func TestSweepFailedRemediationStaysOpen(t *testing.T) {
	store := &memStore{}
	lib := &memLibrary{patterns: patterns.Defaults()}
	exec := &fakeExecutor{fail: true}
	reader := &fakeReader{lines: []models.LogLine{
		line(models.SeverityCritical, "Disk usage reached 97.0%, clean up required"),
	}}

	m := newTestMonitor(store, lib, exec, reader, config.RetryPolicy{})
	found, resolved, err := m.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if found != 1 || resolved != 0 {
		t.Fatalf("expected 1 found / 0 resolved, got %d/%d", found, resolved)
	}
	if store.incidents[0].Resolved {
		t.Fatal("failed remediation must leave the incident open")
	}
	if store.incidents[0].Attempts != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", store.incidents[0].Attempts)
	}
}

func TestRetrySweepHonoursPolicy(t *testing.T) {
	now := time.Now().UTC()
	store := &memStore{
		incidents: []*models.Incident{
			{ID: 1, Message: "Disk usage reached 91.0%, clean up required", Attempts: 5, LastAttempt: now.Add(-time.Hour)},
			{ID: 2, Message: "Disk usage reached 92.0%, clean up required", Attempts: 1, LastAttempt: now.Add(-10 * time.Second)},
			{ID: 3, Message: "Disk usage reached 93.0%, clean up required", Attempts: 1, LastAttempt: now.Add(-10 * time.Minute)},
		},
		nextID: 3,
	}
	lib := &memLibrary{patterns: patterns.Defaults()}
	exec := &fakeExecutor{}
	m := newTestMonitor(store, lib, exec, &fakeReader{}, config.RetryPolicy{
		MaxAttempts: 5,
		Backoff:     time.Minute,
	})

	resolved, err := m.RetrySweep(context.Background())
	if err != nil {
		t.Fatalf("RetrySweep: %v", err)
	}
	// Incident 1 is over the attempt cap, incident 2 is inside the backoff
	// window, incident 3 is eligible.
	if resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", resolved)
	}
	if len(exec.commands) != 1 {
		t.Fatalf("expected 1 execution, got %v", exec.commands)
	}
	if inc, _ := store.GetIncident(context.Background(), 3); !inc.Resolved {
		t.Fatal("eligible incident should be resolved")
	}
}

func TestRetrySweepUnboundedByDefault(t *testing.T) {
	store := &memStore{
		incidents: []*models.Incident{
			{ID: 1, Message: "Disk usage reached 91.0%, clean up required", Attempts: 100, LastAttempt: time.Now()},
		},
		nextID: 1,
	}
	lib := &memLibrary{patterns: patterns.Defaults()}
	exec := &fakeExecutor{}
	m := newTestMonitor(store, lib, exec, &fakeReader{}, config.RetryPolicy{})

	resolved, err := m.RetrySweep(context.Background())
	if err != nil {
		t.Fatalf("RetrySweep: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("zero-valued policy must retry unboundedly, got %d resolved", resolved)
	}
}

func TestSubmitRemediation(t *testing.T) {
	store := &memStore{}
	lib := &memLibrary{}
	exec := &fakeExecutor{}
	m := newTestMonitor(store, lib, exec, &fakeReader{}, config.RetryPolicy{})

	inc := &models.Incident{
		Timestamp: time.Now().UTC(),
		Service:   "worker",
		Category:  "error",
		Severity:  models.SeverityError,
		Message:   "worker process terminated unexpectedly with exit code 137",
	}
	if err := store.CreateIncident(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	fb, err := m.SubmitRemediation(context.Background(), inc.ID, "restart_service.sh worker")
	if err != nil {
		t.Fatalf("SubmitRemediation: %v", err)
	}
	if !fb.Resolved {
		t.Fatal("expected incident resolved")
	}
	if fb.Pattern.IssuePattern != "worker process terminated unexpectedly with exit code {code}" {
		t.Errorf("unexpected learned template %q", fb.Pattern.IssuePattern)
	}
	if fb.Pattern.Confidence != 0.8 {
		t.Errorf("operator patterns must carry confidence 0.8, got %v", fb.Pattern.Confidence)
	}
	if len(exec.commands) != 1 || exec.commands[0] != "restart_service.sh worker" {
		t.Fatalf("unexpected executions: %v", exec.commands)
	}

	// The learned pattern now matches a similar future incident.
	pats, _ := lib.List(context.Background())
	if got := match.NewMatcher(nil).FindBest(pats, "worker process terminated unexpectedly with exit code 9"); got == nil {
		t.Fatal("learned pattern should match similar messages")
	}
}

func TestSubmitRemediationValidation(t *testing.T) {
	m := newTestMonitor(&memStore{}, &memLibrary{}, &fakeExecutor{}, &fakeReader{}, config.RetryPolicy{})

	if _, err := m.SubmitRemediation(context.Background(), 1, ""); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := m.SubmitRemediation(context.Background(), 99, "restart_service.sh x"); !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
}
