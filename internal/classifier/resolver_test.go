package classifier

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/rules"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newResolver(t *testing.T, model *Model) *Resolver {
	t.Helper()
	store, err := rules.NewStore("", discard())
	require.NoError(t, err)
	return NewResolver(rules.NewEngine(store, discard()), model, discard())
}

func TestClassifyBrandRuleWins(t *testing.T) {
	r := newResolver(t, trainedModel())

	res := r.Classify("MERALCO\nTOTAL DUE 1,245.67\n03/15/2024", "MERALCO")
	assert.Equal(t, string(constants.Utilities), res.Category)
	assert.Equal(t, constants.SourceBrandRule, res.Source)
	assert.Equal(t, constants.RuleConfidence, res.Confidence)
}

func TestClassifyKeywordRuleBeatsModel(t *testing.T) {
	r := newResolver(t, trainedModel())

	res := r.Classify("pharmacy rx tablet purchase", "")
	assert.Equal(t, "Health & Wellness", res.Category)
	assert.Equal(t, constants.SourceKeywordRule, res.Source)
	assert.Equal(t, constants.RuleConfidence, res.Confidence)
}

func TestClassifyModelFallback(t *testing.T) {
	r := newResolver(t, trainedModel())

	// No brand, no rule keyword; the model still recognizes food vocabulary.
	res := r.Classify("peach mango pie and sundae with gravy", "ALING NENA STORE")
	assert.Equal(t, "Food", res.Category)
	assert.Equal(t, constants.SourceModel, res.Source)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestClassifyAbsentModelFallsBackToOthers(t *testing.T) {
	r := newResolver(t, nil)

	res := r.Classify("", "")
	assert.Equal(t, string(constants.Others), res.Category)
	assert.Equal(t, constants.SourceModel, res.Source)
	assert.Equal(t, constants.FallbackConfidence, res.Confidence)
}

func TestClassifyEmptyTextWithModel(t *testing.T) {
	r := newResolver(t, trainedModel())

	// Empty text tokenizes to nothing, so even a trained model abstains.
	res := r.Classify("", "")
	assert.Equal(t, string(constants.Others), res.Category)
	assert.Equal(t, constants.FallbackConfidence, res.Confidence)
}

func TestSetModelSwaps(t *testing.T) {
	r := newResolver(t, nil)
	assert.Nil(t, r.Model())

	m := trainedModel()
	r.SetModel(m)
	assert.Same(t, m, r.Model())

	res := r.Classify("burger fries meal", "")
	assert.Equal(t, constants.SourceModel, res.Source)
	assert.Equal(t, "Food", res.Category)
}
