package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/remedystack/remedy-engine/internal/models"
)

// StatusInsufficientData is reported when too few incidents exist to fit a
// model. Training then produces an untrained placeholder instead of failing.
const StatusInsufficientData = "insufficient data"

// StatusActive is reported after a successful training run.
const StatusActive = "active and learning"

// Store provides the incident history used as training data.
type Store interface {
	AllIncidents(ctx context.Context) ([]models.Incident, error)
}

// Config bounds a training run.
type Config struct {
	MinSamples   int
	MaxFeatures  int
	TestFraction float64
}

// Trainer periodically refits the advisory category classifier from the
// full incident ledger and persists it to disk.
type Trainer struct {
	store     Store
	cfg       Config
	modelPath string
	logger    *slog.Logger

	mu    sync.RWMutex
	model *Model
}

// NewTrainer constructs a Trainer. An existing persisted model is loaded so
// predictions survive restarts; absence of one is not an error.
func NewTrainer(logger *slog.Logger, store Store, cfg Config, modelPath string) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 100
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = 0.2
	}

	t := &Trainer{store: store, cfg: cfg, modelPath: modelPath, logger: logger}
	if m, err := LoadModel(modelPath); err == nil {
		t.model = m
		logger.Info("loaded persisted classifier model",
			slog.Bool("trained", m.Trained),
			slog.Int("classes", len(m.Classes)))
	}
	return t
}

// Train refits the model from all recorded incidents. With fewer than
// MinSamples incidents it persists an untrained placeholder and reports
// StatusInsufficientData rather than failing.
func (t *Trainer) Train(ctx context.Context) (models.TrainReport, error) {
	incidents, err := t.store.AllIncidents(ctx)
	if err != nil {
		return models.TrainReport{}, fmt.Errorf("load training data: %w", err)
	}

	report := models.TrainReport{
		ModelType: "NaiveBayes (TF-IDF)",
		TrainedAt: time.Now().UTC(),
	}

	if len(incidents) < t.cfg.MinSamples {
		t.logger.Warn("not enough incident data for training",
			slog.Int("incidents", len(incidents)),
			slog.Int("required", t.cfg.MinSamples))
		placeholder := &Model{Trained: false, TrainedAt: report.TrainedAt}
		if err := placeholder.Save(t.modelPath); err != nil {
			return models.TrainReport{}, err
		}
		t.setModel(placeholder)
		report.Status = StatusInsufficientData
		return report, nil
	}

	// Fixed seed keeps the split, and therefore the reported accuracy,
	// reproducible across runs over the same ledger.
	rng := rand.New(rand.NewSource(42))
	order := rng.Perm(len(incidents))

	testSize := int(float64(len(incidents)) * t.cfg.TestFraction)
	if testSize < 1 {
		testSize = 1
	}
	testIdx, trainIdx := order[:testSize], order[testSize:]

	trainDocs := make([]string, len(trainIdx))
	trainLabels := make([]string, len(trainIdx))
	for i, idx := range trainIdx {
		trainDocs[i] = incidents[idx].Message
		trainLabels[i] = incidents[idx].Category
	}

	vectorizer := &Vectorizer{MaxFeatures: t.cfg.MaxFeatures}
	vectorizer.Fit(trainDocs)
	vecs := make([][]float64, len(trainDocs))
	for i, doc := range trainDocs {
		vecs[i] = vectorizer.Transform(doc)
	}

	model := &Model{Vectorizer: vectorizer, TrainedAt: report.TrainedAt}
	model.Fit(vecs, trainLabels)

	correct := 0
	for _, idx := range testIdx {
		if predicted, ok := model.Predict(incidents[idx].Message); ok && predicted == incidents[idx].Category {
			correct++
		}
	}
	accuracy := float64(correct) / float64(testSize)

	if err := model.Save(t.modelPath); err != nil {
		return models.TrainReport{}, err
	}
	t.setModel(model)

	report.SampleCount = len(trainIdx)
	report.Accuracy = accuracy
	report.Status = StatusActive
	t.logger.Info("classifier trained",
		slog.Int("samples", report.SampleCount),
		slog.Float64("accuracy", accuracy))
	return report, nil
}

// Predict classifies a message with the current model. ok is false before
// the first successful training run.
func (t *Trainer) Predict(message string) (string, bool) {
	t.mu.RLock()
	model := t.model
	t.mu.RUnlock()
	if model == nil {
		return "", false
	}
	return model.Predict(message)
}

func (t *Trainer) setModel(m *Model) {
	t.mu.Lock()
	t.model = m
	t.mu.Unlock()
}
