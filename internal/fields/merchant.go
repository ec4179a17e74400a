package fields

import (
	"regexp"
	"strings"

	"github.com/resibo-ph/resibo/internal/ocr"
)

// headerScan is how many leading lines may plausibly contain the store name.
const headerScan = 12

// boilerplate tokens that disqualify a header line as the merchant name
var skipMerchant = []string{
	"receipt", "invoice", "official", "sales", "or#", "tin", "vat",
	"pos", "cashier", "terminal",
}

var (
	reWordy      = regexp.MustCompile(`[A-Za-z][A-Za-z\-&' ]{2,}`)
	reMultiSpace = regexp.MustCompile(`\s{2,}`)
	// tokens that usually start an address or metadata tail
	reHeaderBreak = regexp.MustCompile(`(?i)\b(branch|tin|vat|address|add\.?|tel|contact|phone|no\.?|receipt|invoice|official|cashier|terminal|store no\.?)\b`)
	reLegalSuffix = regexp.MustCompile(`\b(CORP(?:ORATION)?|INC\.?|CO\.?|COMPANY|LTD\.?)\b`)
)

// ExtractMerchant returns the first wordy, non-boilerplate line from the
// receipt header, or "" when nothing qualifies.
func ExtractMerchant(text string) string {
	lines := nonEmptyLines(text)
	limit := len(lines)
	if limit > headerScan {
		limit = headerScan
	}
	for _, line := range lines[:limit] {
		cand := strings.Trim(line, "-—:| ")
		if len(cand) < 3 {
			continue
		}
		low := strings.ToLower(cand)
		if containsAny(low, skipMerchant) {
			continue
		}
		if !reWordy.MatchString(cand) {
			continue
		}
		cand = strings.ReplaceAll(cand, "|", "I")
		cand = strings.ReplaceAll(cand, "0/", "Q")
		return strings.TrimSpace(reMultiSpace.ReplaceAllString(cand, " "))
	}
	return ""
}

// NormalizeMerchant produces the uppercase matching form of a raw merchant
// line: glyphs repaired, address/metadata tail cut, legal suffixes dropped.
func NormalizeMerchant(raw string) string {
	s := ocr.SanitizeHeader(raw)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if loc := reHeaderBreak.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = reLegalSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(reMultiSpace.ReplaceAllString(s, " "))
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
