package constants

import (
	"strings"
)

type Category string

// Builtin categories. User-defined custom labels extend this set at runtime
// and are referenced by plain name.
const (
	Utilities      Category = "Utilities"
	Food           Category = "Food"
	Groceries      Category = "Groceries"
	Transportation Category = "Transportation"
	HealthWellness Category = "Health & Wellness"
	Others         Category = "Others"
)

var allCategories = []Category{
	Utilities,
	Food,
	Groceries,
	Transportation,
	HealthWellness,
	Others,
}

func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// IsBuiltin reports whether name is one of the fixed builtin categories
// (case-insensitive).
func IsBuiltin(name string) bool {
	_, ok := Canonicalize(name)
	return ok
}

// Canonicalize maps free-form input onto a builtin category.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Others, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Category{
		"utility":       Utilities,
		"bills":         Utilities,
		"grocery":       Groceries,
		"supermarket":   Groceries,
		"transport":     Transportation,
		"fuel":          Transportation,
		"health":        HealthWellness,
		"wellness":      HealthWellness,
		"pharmacy":      HealthWellness,
		"dining":        Food,
		"restaurant":    Food,
		"other":         Others,
		"uncategorized": Others,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	// check if it matches any category string
	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Others, false
}
