package classifier

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedModel() *Model {
	m := NewModel()
	m.Learn("kwh kilowatt meter electric billing statement", "Utilities")
	m.Learn("meralco electric bill account billing", "Utilities")
	m.Learn("burger fries chicken meal combo drink", "Food")
	m.Learn("chickenjoy meal rice drink take out", "Food")
	m.Learn("gravy sundae peach mango pie dessert", "Food")
	m.Learn("diesel unleaded pump liter toll", "Transportation")
	return m
}

func TestTokenize(t *testing.T) {
	got := Tokenize("MERALCO Bill: 1,245.67 kWh (Mar-2024) x")
	assert.Equal(t, []string{"meralco", "bill", "kwh", "mar"}, got)
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("123 45.67"))
}

func TestPredict(t *testing.T) {
	m := trainedModel()

	label, conf, ok := m.Predict("electric billing kwh meter")
	require.True(t, ok)
	assert.Equal(t, "Utilities", label)
	assert.Greater(t, conf, 0.5)
	assert.LessOrEqual(t, conf, 1.0)

	label, _, ok = m.Predict("burger meal with fries")
	require.True(t, ok)
	assert.Equal(t, "Food", label)
}

func TestPredictUntrainedOrEmpty(t *testing.T) {
	m := NewModel()
	_, _, ok := m.Predict("anything")
	assert.False(t, ok)

	m = trainedModel()
	_, _, ok = m.Predict("")
	assert.False(t, ok)
}

func TestLearnIsMonotonic(t *testing.T) {
	m := trainedModel()
	text := "gong cha milk tea beverage snack"

	_, before, _ := m.Predict(text)

	// Absorbing more matching evidence must not lower the matching class.
	m.Learn("milk tea beverage snack drink", "Food")
	m.Learn("gong cha beverage large cup", "Food")

	label, after, ok := m.Predict(text)
	require.True(t, ok)
	assert.Equal(t, "Food", label)
	assert.GreaterOrEqual(t, after, before)
}

func TestLearnIgnoresEmpty(t *testing.T) {
	m := NewModel()
	m.Learn("", "Food")
	m.Learn("burger", "")
	assert.False(t, m.Trained())
	assert.Zero(t, m.ExampleCount())
}

func TestArtifactRoundTrip(t *testing.T) {
	m := trainedModel()
	path := filepath.Join(t.TempDir(), "models", "classifier.json")

	require.NoError(t, SaveModel(m, path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.ExampleCount(), loaded.ExampleCount())

	wantLabel, wantConf, _ := m.Predict("electric billing kwh")
	gotLabel, gotConf, ok := loaded.Predict("electric billing kwh")
	require.True(t, ok)
	assert.Equal(t, wantLabel, gotLabel)
	assert.InDelta(t, wantConf, gotConf, 1e-9)
}

func TestLoadModelMissingFile(t *testing.T) {
	m, err := LoadModel(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, m)
}
