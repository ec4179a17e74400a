package constants

// ClassificationSource marks where a category decision came from.
type ClassificationSource string

const (
	SourceBrandRule        ClassificationSource = "brand-rule"
	SourceKeywordRule      ClassificationSource = "keyword-rule"
	SourceModel            ClassificationSource = "model"
	SourceManualCorrection ClassificationSource = "manual-correction"
)

// Confidence constants shared by the resolver and its callers.
const (
	// RuleConfidence is reported whenever a brand or keyword rule fires;
	// rules are treated as ground truth.
	RuleConfidence = 0.95
	// FallbackConfidence is reported when neither a rule nor a trained
	// model produced a decision.
	FallbackConfidence = 0.3
)
