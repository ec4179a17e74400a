package classifier

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/resibo-ph/resibo/internal/entity"
)

// Example is one labeled training pair.
type Example struct {
	Text  string
	Label string
}

// Report summarizes one training run.
type Report struct {
	Examples int     `json:"examples"`
	Holdout  int     `json:"holdout"`
	Accuracy float64 `json:"accuracy"` // on the holdout; 0 when no holdout
	Labels   int     `json:"labels"`
}

// ReadBootstrapCSV loads (text,label) rows. A leading header row is
// detected by its column names and skipped; rows with a missing column are
// skipped rather than failing the run.
func ReadBootstrapCSV(path string, logger *slog.Logger) ([]Example, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Example
	first := true
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bootstrap csv: %w", err)
		}
		if first {
			first = false
			if looksLikeHeader(rec) {
				continue
			}
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" || strings.TrimSpace(rec[1]) == "" {
			skipped++
			continue
		}
		out = append(out, Example{Text: rec[0], Label: strings.TrimSpace(rec[1])})
	}
	if skipped > 0 {
		logger.Warn("skipped malformed bootstrap rows", "count", skipped)
	}
	return out, nil
}

func looksLikeHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(rec[0]))
	b := strings.ToLower(strings.TrimSpace(rec[1]))
	return (a == "text" || a == "ocr_text") && (b == "label" || b == "category")
}

// FeedbackExamples converts stored correction pairs into training examples.
func FeedbackExamples(records []entity.FeedbackRecord) []Example {
	out := make([]Example, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Text) == "" || rec.Category == "" {
			continue
		}
		out = append(out, Example{Text: rec.Text, Label: rec.Category})
	}
	return out
}

// Train builds a fresh model from the given examples. With holdoutRatio in
// (0,1) and enough data, a deterministic shuffle reserves that share for a
// holdout accuracy figure; the holdout is folded back in afterwards so the
// shipped model sees every example.
func Train(examples []Example, holdoutRatio float64, logger *slog.Logger) (*Model, Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(examples) == 0 {
		return nil, Report{}, fmt.Errorf("no training examples")
	}

	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	holdout := 0
	if holdoutRatio > 0 && holdoutRatio < 1 {
		holdout = int(float64(len(shuffled)) * holdoutRatio)
	}
	if holdout >= len(shuffled) {
		holdout = 0
	}
	train, eval := shuffled[holdout:], shuffled[:holdout]

	m := NewModel()
	for _, ex := range train {
		m.Learn(ex.Text, ex.Label)
	}

	var accuracy float64
	if len(eval) > 0 {
		correct := 0
		for _, ex := range eval {
			if label, _, ok := m.Predict(ex.Text); ok && label == ex.Label {
				correct++
			}
		}
		accuracy = float64(correct) / float64(len(eval))
		for _, ex := range eval {
			m.Learn(ex.Text, ex.Label)
		}
	}

	report := Report{
		Examples: len(examples),
		Holdout:  len(eval),
		Accuracy: accuracy,
		Labels:   len(m.Labels()),
	}
	logger.Info("model trained",
		"examples", report.Examples,
		"holdout", report.Holdout,
		"accuracy", report.Accuracy,
		"labels", report.Labels)
	return m, report, nil
}
