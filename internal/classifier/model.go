package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Model is a multinomial naive Bayes classifier over TF-IDF features,
// predicting an incident's category from its message text. Its output is
// advisory only and never drives matching or remediation.
type Model struct {
	Trained        bool        `json:"trained"`
	Vectorizer     *Vectorizer `json:"vectorizer"`
	Classes        []string    `json:"classes"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
	TrainedAt      time.Time   `json:"trained_at"`
}

// Fit estimates class priors and per-class feature likelihoods with
// Laplace smoothing.
func (m *Model) Fit(vecs [][]float64, labels []string) {
	classIndex := make(map[string]int)
	for _, label := range labels {
		if _, ok := classIndex[label]; !ok {
			classIndex[label] = len(m.Classes)
			m.Classes = append(m.Classes, label)
		}
	}

	nFeatures := 0
	if len(vecs) > 0 {
		nFeatures = len(vecs[0])
	}

	counts := make([]float64, len(m.Classes))
	featureSums := make([][]float64, len(m.Classes))
	for i := range featureSums {
		featureSums[i] = make([]float64, nFeatures)
	}
	for i, vec := range vecs {
		c := classIndex[labels[i]]
		counts[c]++
		for j, val := range vec {
			featureSums[c][j] += val
		}
	}

	total := float64(len(vecs))
	m.ClassLogPrior = make([]float64, len(m.Classes))
	m.FeatureLogProb = make([][]float64, len(m.Classes))
	for c := range m.Classes {
		m.ClassLogPrior[c] = math.Log(counts[c] / total)
		var classTotal float64
		for _, s := range featureSums[c] {
			classTotal += s
		}
		m.FeatureLogProb[c] = make([]float64, nFeatures)
		for j := range featureSums[c] {
			m.FeatureLogProb[c][j] = math.Log((featureSums[c][j] + 1) / (classTotal + float64(nFeatures)))
		}
	}
	m.Trained = true
}

// Predict returns the most likely class for a message. ok is false for an
// untrained model.
func (m *Model) Predict(message string) (string, bool) {
	if !m.Trained || m.Vectorizer == nil || len(m.Classes) == 0 {
		return "", false
	}
	vec := m.Vectorizer.Transform(message)

	best, bestScore := 0, math.Inf(-1)
	for c := range m.Classes {
		score := m.ClassLogPrior[c]
		for j, val := range vec {
			if val != 0 {
				score += val * m.FeatureLogProb[c][j]
			}
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return m.Classes[best], true
}

// Save persists the model as JSON.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// LoadModel reads a persisted model from disk.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return &m, nil
}
