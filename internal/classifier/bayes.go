package classifier

import (
	"math"
	"sync"
)

// Model is a multinomial naive Bayes text classifier with Laplace smoothing.
// Learning is incremental: every observed (text, label) pair only adds
// counts, so the model never has to retrain from scratch to absorb feedback.
type Model struct {
	mu sync.RWMutex

	Docs    int                   `json:"docs"`
	Classes map[string]*ClassData `json:"classes"`
	Vocab   map[string]bool       `json:"vocab"`
}

// ClassData holds the per-category counts the posterior is computed from.
type ClassData struct {
	Docs   int            `json:"docs"`
	Tokens int            `json:"tokens"`
	Counts map[string]int `json:"counts"`
}

func NewModel() *Model {
	return &Model{
		Classes: make(map[string]*ClassData),
		Vocab:   make(map[string]bool),
	}
}

// Learn absorbs one labeled example.
func (m *Model) Learn(text, label string) {
	tokens := Tokenize(text)
	if len(tokens) == 0 || label == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cd := m.Classes[label]
	if cd == nil {
		cd = &ClassData{Counts: make(map[string]int)}
		m.Classes[label] = cd
	}
	m.Docs++
	cd.Docs++
	for _, tok := range tokens {
		cd.Counts[tok]++
		cd.Tokens++
		m.Vocab[tok] = true
	}
}

// Trained reports whether the model has seen enough to make any prediction.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Docs > 0 && len(m.Classes) > 0
}

// Predict returns the most probable label and its normalized posterior
// probability. ok is false when the model is untrained or the text yields no
// tokens.
func (m *Model) Predict(text string) (label string, confidence float64, ok bool) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return "", 0, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Docs == 0 || len(m.Classes) == 0 {
		return "", 0, false
	}

	vocabSize := float64(len(m.Vocab))
	type scored struct {
		label string
		logp  float64
	}
	scores := make([]scored, 0, len(m.Classes))
	for name, cd := range m.Classes {
		logp := math.Log(float64(cd.Docs) / float64(m.Docs))
		denom := float64(cd.Tokens) + vocabSize
		for _, tok := range tokens {
			logp += math.Log((float64(cd.Counts[tok]) + 1) / denom)
		}
		scores = append(scores, scored{name, logp})
	}

	// Normalize in log space to a posterior; the winner's share is the
	// reported confidence.
	maxLog := scores[0].logp
	for _, s := range scores[1:] {
		if s.logp > maxLog {
			maxLog = s.logp
		}
	}
	var sum float64
	best, bestP := "", -1.0
	for _, s := range scores {
		p := math.Exp(s.logp - maxLog)
		sum += p
		if p > bestP || (p == bestP && s.label < best) {
			best, bestP = s.label, p
		}
	}
	return best, bestP / sum, true
}

// Labels returns the categories the model knows about.
func (m *Model) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.Classes))
	for name := range m.Classes {
		out = append(out, name)
	}
	return out
}

// ExampleCount returns how many documents the model has absorbed.
func (m *Model) ExampleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Docs
}
