package classifier

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Vectorizer maps message text onto a fixed TF-IDF feature space. The
// vocabulary is capped at MaxFeatures terms chosen by document frequency.
type Vectorizer struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	MaxFeatures int            `json:"max_features"`
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Fit learns the vocabulary and IDF weights from the corpus.
func (v *Vectorizer) Fit(corpus []string) {
	if v.MaxFeatures <= 0 {
		v.MaxFeatures = 100
	}

	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	// Highest document frequency first; alphabetical on ties so the
	// selected vocabulary is deterministic.
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}

	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
}

// Transform converts one document into its L2-normalized TF-IDF vector.
func (v *Vectorizer) Transform(doc string) []float64 {
	vec := make([]float64, len(v.IDF))
	for _, tok := range tokenize(doc) {
		if idx, ok := v.Vocabulary[tok]; ok {
			vec[idx]++
		}
	}
	var norm float64
	for i := range vec {
		vec[i] *= v.IDF[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
