package fields

import (
	"regexp"
	"strconv"
	"strings"
)

// amount with optional peso marker, comma thousands, and 2-decimal cents
var reAmount = regexp.MustCompile(`(?:₱|PHP|Php|php)?\s*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})|[0-9]+(?:\.[0-9]{2}))`)

// totalKeys mark the line that usually carries the amount to pay.
var totalKeys = []string{
	"grand total", "total amount due", "amount due", "total due",
	"total amount", "total payable", "amount payable", "balance due",
	"balance", "total", "amount to pay", "net amount due", "net amount",
	"total sales", "amount you owe",
}

// lowPriorityKeys mark tender/change lines whose amounts must never win.
var lowPriorityKeys = []string{
	"cash", "cash tendered", "tendered", "payment", "paid", "change", "sukli",
}

// ExtractTotal finds the amount to pay in OCR text. Lines with a total-like
// keyword win, taking the last such match since the payable total follows
// subtotal and tax lines. Without any keyworded amount, the largest amount in
// the text is used, which fits itemized receipts with an unlabeled sum.
// Returns ok=false when the text has no parseable amount.
func ExtractTotal(text string) (float64, bool) {
	lines := nonEmptyLines(text)

	var keyworded float64
	haveKeyworded := false
	for i, line := range lines {
		if isLowPriorityLine(line) {
			continue
		}
		if !containsAny(strings.ToLower(line), totalKeys) {
			continue
		}
		if v, ok := firstAmount(line); ok {
			keyworded = v
			haveKeyworded = true
			continue
		}
		// keyword and amount sometimes land on adjacent lines
		if i+1 < len(lines) && !isLowPriorityLine(lines[i+1]) {
			if v, ok := firstAmount(lines[i+1]); ok {
				keyworded = v
				haveKeyworded = true
			}
		}
	}
	if haveKeyworded {
		return keyworded, true
	}

	return largestAmount(lines)
}

func firstAmount(line string) (float64, bool) {
	m := reAmount.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return parseAmount(m[1])
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func isLowPriorityLine(line string) bool {
	return containsAny(strings.ToLower(line), lowPriorityKeys)
}

func largestAmount(lines []string) (float64, bool) {
	var best float64
	found := false
	for _, line := range lines {
		if isLowPriorityLine(line) {
			continue
		}
		for _, m := range reAmount.FindAllStringSubmatch(line, -1) {
			if v, ok := parseAmount(m[1]); ok && (!found || v > best) {
				best = v
				found = true
			}
		}
	}
	return best, found
}
