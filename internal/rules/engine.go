package rules

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/resibo-ph/resibo/constants"
)

// Match is a successful rule decision.
type Match struct {
	Category string
	Source   constants.ClassificationSource
	// Brand is the canonical brand that matched; empty for keyword matches.
	Brand string
	// Score is the brand similarity in [0,1]; 1.0 for exact and alias hits.
	Score float64
}

// Engine applies the active rule table: brand rules against the normalized
// merchant, then keyword rules against the whole text in table priority
// order. A miss returns ok=false and hands the decision to the model.
type Engine struct {
	store  *Store
	logger *slog.Logger
}

func NewEngine(store *Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Apply runs both rule stages. merchantNorm may be empty when field
// extraction found no merchant; the keyword stage still runs.
func (e *Engine) Apply(text, merchantNorm string) (Match, bool) {
	t := e.store.Current()

	if m, ok := e.matchBrand(t, merchantNorm); ok {
		e.logger.Debug("brand rule matched", "brand", m.Brand, "category", m.Category, "score", m.Score)
		return m, true
	}
	if m, ok := matchKeywords(t, text); ok {
		e.logger.Debug("keyword rule matched", "category", m.Category)
		return m, true
	}
	return Match{}, false
}

func (e *Engine) matchBrand(t *Table, merchantNorm string) (Match, bool) {
	norm := strings.ToUpper(strings.TrimSpace(merchantNorm))
	if norm == "" {
		return Match{}, false
	}

	// Alias pass handles legal names on the printed header. Keys are walked
	// in sorted order so overlapping aliases resolve the same way every run.
	aliases := make([]string, 0, len(t.Aliases))
	for alias := range t.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if strings.Contains(norm, alias) {
			if cat, ok := categoryOfBrand(t, t.Aliases[alias]); ok {
				return Match{Category: cat, Source: constants.SourceBrandRule, Brand: t.Aliases[alias], Score: 1.0}, true
			}
		}
	}

	// Exact / containment pass, in table priority order for determinism.
	for _, cat := range brandCategories(t) {
		for _, b := range t.Brands[cat] {
			if strings.Contains(norm, b) || strings.Contains(b, norm) {
				return Match{Category: cat, Source: constants.SourceBrandRule, Brand: b, Score: 1.0}, true
			}
		}
	}

	// Fuzzy pass absorbs OCR damage to the header.
	bestBrand, bestCat, bestScore := "", "", 0.0
	for _, cat := range brandCategories(t) {
		for _, b := range t.Brands[cat] {
			if score := brandSimilarity(norm, b); score > bestScore {
				bestBrand, bestCat, bestScore = b, cat, score
			}
		}
	}
	if bestScore >= t.FuzzyThreshold {
		return Match{Category: bestCat, Source: constants.SourceBrandRule, Brand: bestBrand, Score: bestScore}, true
	}
	return Match{}, false
}

func matchKeywords(t *Table, text string) (Match, bool) {
	low := strings.ToLower(text)
	if strings.TrimSpace(low) == "" {
		return Match{}, false
	}
	for _, cat := range t.Priority {
		for _, kw := range t.Keywords[cat] {
			if strings.Contains(low, kw) {
				return Match{Category: cat, Source: constants.SourceKeywordRule}, true
			}
		}
	}
	return Match{}, false
}

// brandCategories lists the categories carrying brand rules: Priority order
// first, then any extras (custom tables may rule on categories they do not
// prioritize for keywords) in sorted order.
func brandCategories(t *Table) []string {
	out := make([]string, 0, len(t.Brands))
	seen := make(map[string]bool, len(t.Brands))
	for _, cat := range t.Priority {
		if _, ok := t.Brands[cat]; ok && !seen[cat] {
			out = append(out, cat)
			seen[cat] = true
		}
	}
	var extra []string
	for cat := range t.Brands {
		if !seen[cat] {
			extra = append(extra, cat)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func categoryOfBrand(t *Table, brand string) (string, bool) {
	for cat, brands := range t.Brands {
		for _, b := range brands {
			if b == brand {
				return cat, true
			}
		}
	}
	return "", false
}

// digit-for-letter confusions OCR makes inside brand names
var matchReplacer = strings.NewReplacer(
	"2I", "PI",
	"2L", "PL",
	"0", "O",
	"1", "I",
	"2", "Z",
	"3", "B",
	"4", "A",
	"5", "S",
	"6", "G",
	"7", "T",
	"8", "B",
	"9", "G",
	"@", "A",
	"$", "S",
	"€", "E",
	"£", "L",
	"¢", "C",
)

var reNonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// matchForm collapses a name to the alphabet the fuzzy comparison runs over.
func matchForm(s string) string {
	s = matchReplacer.Replace(strings.ToUpper(s))
	return reNonAlnum.ReplaceAllString(s, "")
}

// brandSimilarity scores an OCR'd merchant against a canonical brand in
// [0,1]: levenshtein ratio on the collapsed forms, a sliding-window partial
// match for headers with extra tail text, and a small prefix bonus for
// truncated reads.
func brandSimilarity(norm, brand string) float64 {
	a := matchForm(norm)
	b := matchForm(brand)
	if a == "" || b == "" {
		return 0
	}

	score := levenshtein.Similarity(a, b, nil)
	if p := partialRatio(a, b); p > score {
		score = p
	}
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

// partialRatio is the best similarity of the shorter string against any
// equal-length window of the longer one.
func partialRatio(a, b string) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) == 0 {
		return 0
	}
	best := 0.0
	for i := 0; i+len(a) <= len(b); i++ {
		if s := levenshtein.Similarity(a, b[i:i+len(a)], nil); s > best {
			best = s
			if best >= 0.995 {
				break
			}
		}
	}
	return best
}
