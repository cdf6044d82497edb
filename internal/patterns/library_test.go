package patterns

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/remedystack/remedy-engine/internal/models"
)

type fakeStore struct {
	patterns []models.Pattern
	nextID   int64
}

func (f *fakeStore) AppendPattern(_ context.Context, p *models.Pattern) error {
	f.nextID++
	p.ID = f.nextID
	f.patterns = append(f.patterns, *p)
	return nil
}

func (f *fakeStore) ListPatterns(_ context.Context) ([]models.Pattern, error) {
	return append([]models.Pattern(nil), f.patterns...), nil
}

func (f *fakeStore) CountPatterns(_ context.Context) (int, error) {
	return len(f.patterns), nil
}

func TestSeedDefaults(t *testing.T) {
	store := &fakeStore{}
	lib := NewLibrary(nil, store)

	if err := lib.Seed(context.Background(), ""); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(store.patterns) != 9 {
		t.Fatalf("expected 9 default patterns, got %d", len(store.patterns))
	}

	// Seeding a non-empty library must be a no-op.
	if err := lib.Seed(context.Background(), ""); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if len(store.patterns) != 9 {
		t.Fatalf("second seed changed the library: %d patterns", len(store.patterns))
	}
}

func TestSeedFromPackFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	pack := `patterns:
  - issue: "Cache miss rate above {value}%"
    remediation: "warm_cache.sh {service}"
    confidence: 0.7
`
	if err := os.WriteFile(path, []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	lib := NewLibrary(nil, store)
	if err := lib.Seed(context.Background(), path); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(store.patterns) != 1 {
		t.Fatalf("expected 1 pack pattern, got %d", len(store.patterns))
	}
	if store.patterns[0].IssuePattern != "Cache miss rate above {value}%" {
		t.Fatalf("unexpected pattern: %+v", store.patterns[0])
	}
}

func TestSeedMissingPackFallsBack(t *testing.T) {
	store := &fakeStore{}
	lib := NewLibrary(nil, store)
	if err := lib.Seed(context.Background(), filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(store.patterns) != 9 {
		t.Fatalf("expected default fallback of 9 patterns, got %d", len(store.patterns))
	}
}

func TestAddValidation(t *testing.T) {
	lib := NewLibrary(nil, &fakeStore{})

	if _, err := lib.Add(context.Background(), "", "restart_service.sh {service}", 0.8); err == nil {
		t.Fatal("expected error for empty issue template")
	}
	if _, err := lib.Add(context.Background(), "Something broke", "", 0.8); err == nil {
		t.Fatal("expected error for empty remediation template")
	}

	p, err := lib.Add(context.Background(), "Something broke", "restart_service.sh {service}", 0.8)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected assigned ID")
	}
	if p.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", p.Confidence)
	}
}

func TestGeneralize(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "decimal reading",
			message: "CPU usage for web_server exceeded threshold: 97.5%",
			want:    "CPU usage for web_server exceeded threshold: {value}%",
		},
		{
			name:    "exit code",
			message: "worker process terminated unexpectedly with exit code 137",
			want:    "worker process terminated unexpectedly with exit code {code}",
		},
		{
			name:    "transaction id",
			message: "Database deadlock detected in transaction tx-4821",
			want:    "Database deadlock detected in transaction {txid}",
		},
		{
			name:    "multiple shapes",
			message: "Retry of tx-17 failed after 2.5s",
			want:    "Retry of {txid} failed after {value}s",
		},
		{
			name:    "no abstractable shape",
			message: "Unexpected certificate rotation failure",
			want:    "Unexpected certificate rotation failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generalize(tt.message); got != tt.want {
				t.Errorf("Generalize(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}
