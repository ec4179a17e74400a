package classifier

import (
	"regexp"
	"strings"
)

var reToken = regexp.MustCompile(`[a-z0-9]+(?:'[a-z]+)?`)

// Tokenize lowercases text and splits it into alphanumeric tokens.
// Single-character tokens and pure numbers carry no categorical signal on
// receipts (quantities, prices, reference numbers) and are dropped.
func Tokenize(text string) []string {
	raw := reToken.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < 2 || isNumeric(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
