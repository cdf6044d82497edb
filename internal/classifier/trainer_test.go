package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/remedystack/remedy-engine/internal/models"
)

type fakeStore struct {
	incidents []models.Incident
}

func (f *fakeStore) AllIncidents(context.Context) ([]models.Incident, error) {
	return f.incidents, nil
}

func makeIncidents(n int) []models.Incident {
	categories := map[string][]string{
		"error":    {"Database deadlock detected in transaction tx-%d", "Connection refused by upstream %d"},
		"resource": {"CPU usage exceeded threshold: %d%%", "Memory usage continually increasing, current: %dMB"},
		"security": {"Permission denied for worker accessing /data/%d", "Authentication failure burst from client %d"},
	}
	var incidents []models.Incident
	i := 0
	for len(incidents) < n {
		for category, templates := range categories {
			if len(incidents) >= n {
				break
			}
			tpl := templates[i%len(templates)]
			incidents = append(incidents, models.Incident{
				Timestamp: time.Now().UTC(),
				Service:   "svc",
				Category:  category,
				Severity:  models.SeverityError,
				Message:   fmt.Sprintf(tpl, i),
			})
			i++
		}
	}
	return incidents
}

func TestTrainInsufficientData(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.json")
	trainer := NewTrainer(nil, &fakeStore{incidents: makeIncidents(5)}, Config{MinSamples: 10}, modelPath)

	report, err := trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if report.Status != StatusInsufficientData {
		t.Fatalf("expected status %q, got %q", StatusInsufficientData, report.Status)
	}
	if report.Accuracy != 0 || report.SampleCount != 0 {
		t.Fatalf("placeholder report should be empty, got %+v", report)
	}

	// The placeholder must be persisted and loadable.
	m, err := LoadModel(modelPath)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if m.Trained {
		t.Fatal("placeholder model must not claim to be trained")
	}
	if _, ok := trainer.Predict("anything"); ok {
		t.Fatal("untrained model must not predict")
	}
}

func TestTrainAndPredict(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.json")
	store := &fakeStore{incidents: makeIncidents(60)}
	trainer := NewTrainer(nil, store, Config{MinSamples: 10, MaxFeatures: 100, TestFraction: 0.2}, modelPath)

	report, err := trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if report.Status != StatusActive {
		t.Fatalf("expected status %q, got %q", StatusActive, report.Status)
	}
	if report.SampleCount != 48 {
		t.Fatalf("expected 48 training samples, got %d", report.SampleCount)
	}
	if report.Accuracy < 0 || report.Accuracy > 1 {
		t.Fatalf("accuracy out of range: %v", report.Accuracy)
	}

	category, ok := trainer.Predict("Database deadlock detected in transaction tx-777")
	if !ok {
		t.Fatal("expected prediction from trained model")
	}
	if category != "error" {
		t.Errorf("expected category error, got %q", category)
	}
}

func TestTrainIsReproducible(t *testing.T) {
	store := &fakeStore{incidents: makeIncidents(40)}

	first, err := NewTrainer(nil, store, Config{}, filepath.Join(t.TempDir(), "a.json")).Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	second, err := NewTrainer(nil, store, Config{}, filepath.Join(t.TempDir(), "b.json")).Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if first.Accuracy != second.Accuracy || first.SampleCount != second.SampleCount {
		t.Fatalf("training not reproducible: %+v vs %+v", first, second)
	}
}

func TestModelPersistenceRoundTrip(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.json")
	store := &fakeStore{incidents: makeIncidents(30)}
	trainer := NewTrainer(nil, store, Config{}, modelPath)
	if _, err := trainer.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	want, ok := trainer.Predict("Permission denied for worker accessing /data/9")
	if !ok {
		t.Fatal("expected prediction")
	}

	// A fresh trainer picks up the persisted model before any training.
	reloaded := NewTrainer(nil, store, Config{}, modelPath)
	got, ok := reloaded.Predict("Permission denied for worker accessing /data/9")
	if !ok {
		t.Fatal("expected prediction from reloaded model")
	}
	if got != want {
		t.Errorf("reloaded model disagrees: %q vs %q", got, want)
	}
}
