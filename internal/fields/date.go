package fields

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// lines mentioning these hints get first shot at carrying the receipt date
var dateHints = []string{
	"date", "txn date", "transaction date", "billing date", "issued",
	"due date", "period", "period covered", "statement date",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`),          // YYYY-MM-DD
	regexp.MustCompile(`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`),        // MM/DD/YYYY or DD/MM/YYYY
	regexp.MustCompile(`(?i)((?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{2,4})`),
}

// ExtractDate finds the transaction date and returns it as ISO YYYY-MM-DD,
// or "" when no candidate parses. Hinted lines (and the line after them) win
// over a global scan.
func ExtractDate(text string) string {
	lines := nonEmptyLines(text)
	for i, line := range lines {
		if !containsAny(strings.ToLower(line), dateHints) {
			continue
		}
		next := ""
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		for _, look := range []string{line, next} {
			if iso := firstParseableDate(look); iso != "" {
				return iso
			}
		}
	}
	return firstParseableDate(text)
}

func firstParseableDate(s string) string {
	for _, pat := range datePatterns {
		for _, m := range pat.FindAllStringSubmatch(s, -1) {
			if iso := parseDateCandidate(m[1]); iso != "" {
				return iso
			}
		}
	}
	return ""
}

// parseDateCandidate normalizes one matched date string. Ambiguous numeric
// dates are read day-first, matching local receipt conventions; an impossible
// day-first reading (e.g. 03/15/2024) falls back to month-first inside the
// parser.
func parseDateCandidate(s string) string {
	t, err := dateparse.ParseAny(s, dateparse.PreferMonthFirst(false))
	if err != nil {
		return ""
	}
	if t.Year() < 2000 || t.Year() > time.Now().Year()+1 {
		return ""
	}
	return t.Format("2006-01-02")
}
