package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/remedystack/remedy-engine/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIncidentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inc := &models.Incident{
		Timestamp: time.Now().UTC(),
		Service:   "payment_service",
		Category:  "error",
		Severity:  models.SeverityCritical,
		Message:   "Database connection lost",
	}
	if err := s.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if inc.ID == 0 {
		t.Fatal("expected assigned ID")
	}

	found, err := s.FindIncidentByMessage(ctx, "Database connection lost")
	if err != nil {
		t.Fatalf("FindIncidentByMessage: %v", err)
	}
	if found == nil || found.ID != inc.ID {
		t.Fatalf("expected incident %d, got %+v", inc.ID, found)
	}
	if found.Resolved {
		t.Fatal("new incident must be unresolved")
	}

	missing, err := s.FindIncidentByMessage(ctx, "no such message")
	if err != nil {
		t.Fatalf("FindIncidentByMessage: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown message, got %+v", missing)
	}

	unresolved, err := s.ListUnresolved(ctx)
	if err != nil {
		t.Fatalf("ListUnresolved: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved, got %d", len(unresolved))
	}

	res := models.Resolution{
		Command:         "restart_service.sh payment_service",
		ExecutedAt:      time.Now().UTC(),
		DurationSeconds: 1.5,
		Success:         true,
		Output:          "restarted",
	}
	if err := s.MarkResolved(ctx, inc.ID, res); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	// Resolving twice must stay harmless.
	if err := s.MarkResolved(ctx, inc.ID, res); err != nil {
		t.Fatalf("MarkResolved twice: %v", err)
	}

	got, err := s.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if !got.Resolved || got.Resolution == nil {
		t.Fatalf("expected resolved incident with resolution, got %+v", got)
	}
	if got.Resolution.Command != res.Command || !got.Resolution.Success {
		t.Fatalf("resolution mismatch: %+v", got.Resolution)
	}

	total, resolved, err := s.CountIncidents(ctx)
	if err != nil {
		t.Fatalf("CountIncidents: %v", err)
	}
	if total != 1 || resolved != 1 {
		t.Fatalf("expected 1/1, got %d/%d", total, resolved)
	}
}

func TestRecordAttempt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inc := &models.Incident{
		Timestamp: time.Now().UTC(),
		Service:   "api_gateway",
		Severity:  models.SeverityError,
		Message:   "High latency detected: 950ms",
	}
	if err := s.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := s.RecordAttempt(ctx, inc.ID, at); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	got, err := s.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if got.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", got.Attempts)
	}
	if got.LastAttempt.IsZero() {
		t.Fatal("expected last attempt timestamp")
	}
}

func TestPatternsInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	templates := []string{
		"Database connection lost",
		"High latency detected: {value}ms",
		"Service {service} crashed with exit code {code}",
	}
	for _, tpl := range templates {
		p := &models.Pattern{
			IssuePattern:        tpl,
			RemediationTemplate: "restart_service.sh {service}",
			Confidence:          0.9,
			LastUsed:            time.Now().UTC(),
		}
		if err := s.AppendPattern(ctx, p); err != nil {
			t.Fatalf("AppendPattern: %v", err)
		}
	}

	got, err := s.ListPatterns(ctx)
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	if len(got) != len(templates) {
		t.Fatalf("expected %d patterns, got %d", len(templates), len(got))
	}
	for i, p := range got {
		if p.IssuePattern != templates[i] {
			t.Fatalf("pattern %d: expected %q, got %q", i, templates[i], p.IssuePattern)
		}
	}

	count, err := s.CountPatterns(ctx)
	if err != nil {
		t.Fatalf("CountPatterns: %v", err)
	}
	if count != len(templates) {
		t.Fatalf("expected count %d, got %d", len(templates), count)
	}
}

func TestMetricsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	samples := []models.MetricSample{
		{Timestamp: time.Now().UTC(), Service: "web_server", CPU: 42.5, Memory: 61.2, Disk: 70.0, Network: 120.4},
		{Timestamp: time.Now().UTC(), Service: "database", CPU: 96.1, Memory: 88.0, Disk: 93.5, Network: 45.1},
	}
	if err := s.RecordMetrics(ctx, samples); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	got, err := s.RecentMetrics(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMetrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	// Newest first.
	if got[0].Service != "database" {
		t.Fatalf("expected newest sample first, got %q", got[0].Service)
	}
}
