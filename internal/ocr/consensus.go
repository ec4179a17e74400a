package ocr

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/resibo-ph/resibo/internal/entity"
)

// Service runs the configured engines against one image: the priority chain
// until an engine yields non-empty text, then an optional crosscheck pass
// whose agreement with the winner is recorded as consensus. When every
// primary comes back empty or errored, a non-empty crosscheck reading is
// promoted to the result instead. Every soft failure is swallowed into the
// result; only the caller decides what a total failure means.
type Service struct {
	primaries  []Engine
	crosscheck Engine
	threshold  float64
	logger     *slog.Logger
}

func NewService(primaries []Engine, crosscheck Engine, agreeThreshold float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if agreeThreshold <= 0 || agreeThreshold > 1 {
		agreeThreshold = 0.82
	}
	return &Service{
		primaries:  primaries,
		crosscheck: crosscheck,
		threshold:  agreeThreshold,
		logger:     logger,
	}
}

// Run never returns an error; engine failures are recorded in the result and
// a fully failed run sets TotalFailure with empty text.
func (s *Service) Run(ctx context.Context, image []byte) entity.ExtractionResult {
	var res entity.ExtractionResult

	var winner *Attempt
	for _, eng := range s.primaries {
		res.Attempted = append(res.Attempted, eng.Name())
		attempt := eng.Extract(ctx, image)
		if !attempt.Succeeded() {
			s.logger.Warn("ocr engine failed", "engine", eng.Name(), "error", attempt.Err)
			continue
		}
		if strings.TrimSpace(attempt.Text) == "" {
			s.logger.Warn("ocr engine read nothing", "engine", eng.Name())
			continue
		}
		winner = &attempt
		break
	}

	if s.crosscheck != nil && (winner == nil || s.crosscheck.Name() != winner.Engine) {
		res.Attempted = append(res.Attempted, s.crosscheck.Name())
		check := s.crosscheck.Extract(ctx, image)
		switch {
		case !check.Succeeded():
			s.logger.Warn("ocr crosscheck failed", "engine", s.crosscheck.Name(), "error", check.Err)
		case winner != nil:
			sim := TextSimilarity(winner.Text, check.Text)
			res.Consensus = sim >= s.threshold
			s.logger.Info("ocr crosscheck",
				"engine", winner.Engine,
				"crosscheck", s.crosscheck.Name(),
				"similarity", sim,
				"consensus", res.Consensus)
		case strings.TrimSpace(check.Text) != "":
			winner = &check
			s.logger.Info("ocr crosscheck promoted to primary", "engine", check.Engine)
		}
	}

	if winner == nil {
		res.TotalFailure = true
		s.logger.Error("no ocr engine produced text", "attempted", res.Attempted)
		return res
	}

	res.Text = winner.Text
	res.EngineUsed = winner.Engine
	res.Confidence = winner.Confidence
	return res
}

// TextSimilarity scores two OCR readings in [0,1]. Character trigrams absorb
// line reordering between engines; the levenshtein ratio catches short texts
// where trigram sets are too sparse. The higher of the two wins.
func TextSimilarity(a, b string) float64 {
	a = squash(a)
	b = squash(b)
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dice := trigramDice(a, b)
	ratio := levenshtein.Similarity(a, b, nil)
	if ratio > dice {
		return ratio
	}
	return dice
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func trigramDice(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var shared int
	for g, n := range ta {
		if m := tb[g]; m > 0 {
			if n < m {
				shared += n
			} else {
				shared += m
			}
		}
	}
	var total int
	for _, n := range ta {
		total += n
	}
	for _, n := range tb {
		total += n
	}
	return 2 * float64(shared) / float64(total)
}

func trigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 3 {
		return map[string]int{string(runes): 1}
	}
	out := make(map[string]int, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])]++
	}
	return out
}
