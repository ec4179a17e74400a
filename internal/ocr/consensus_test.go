package ocr

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name    string
	attempt Attempt
	calls   int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Extract(_ context.Context, _ []byte) Attempt {
	f.calls++
	a := f.attempt
	a.Engine = f.name
	return a
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestServiceFirstSuccessWins(t *testing.T) {
	first := &fakeEngine{name: "paddle_vl", attempt: Attempt{Text: "MERALCO\nTOTAL DUE 1,245.67"}}
	second := &fakeEngine{name: "tesseract", attempt: Attempt{Text: "should not run"}}
	svc := NewService([]Engine{first, second}, nil, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.TotalFailure)
	assert.Equal(t, "paddle_vl", res.EngineUsed)
	assert.Equal(t, "MERALCO\nTOTAL DUE 1,245.67", res.Text)
	assert.Equal(t, []string{"paddle_vl"}, res.Attempted)
	assert.Equal(t, 0, second.calls)
}

func TestServiceFallsBackOnFailure(t *testing.T) {
	broken := &fakeEngine{name: "paddle_vl", attempt: Attempt{Err: "network: refused"}}
	working := &fakeEngine{name: "tesseract", attempt: Attempt{Text: "JOLLIBEE"}}
	svc := NewService([]Engine{broken, working}, nil, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.TotalFailure)
	assert.Equal(t, "tesseract", res.EngineUsed)
	assert.Equal(t, []string{"paddle_vl", "tesseract"}, res.Attempted)
}

func TestServiceTotalFailure(t *testing.T) {
	a := &fakeEngine{name: "paddle_vl", attempt: Attempt{Err: "down"}}
	b := &fakeEngine{name: "tesseract", attempt: Attempt{Err: "missing binary"}}
	svc := NewService([]Engine{a, b}, nil, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.True(t, res.TotalFailure)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.EngineUsed)
	assert.Equal(t, []string{"paddle_vl", "tesseract"}, res.Attempted)
}

func TestServiceFallsBackOnBlankReading(t *testing.T) {
	blank := &fakeEngine{name: "tesseract", attempt: Attempt{Text: "   \n "}}
	working := &fakeEngine{name: "ocr_space", attempt: Attempt{Text: "MERALCO\nTOTAL DUE 1,245.67"}}
	svc := NewService([]Engine{blank, working}, nil, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.TotalFailure)
	assert.Equal(t, "ocr_space", res.EngineUsed)
	assert.Equal(t, "MERALCO\nTOTAL DUE 1,245.67", res.Text)
	assert.Equal(t, []string{"tesseract", "ocr_space"}, res.Attempted)
}

func TestServiceAllBlankIsTotalFailure(t *testing.T) {
	blank := &fakeEngine{name: "tesseract", attempt: Attempt{Text: ""}}
	svc := NewService([]Engine{blank}, nil, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.True(t, res.TotalFailure)
	assert.Empty(t, res.EngineUsed)
	assert.Empty(t, res.Text)
}

func TestServiceCrosscheckRescuesFailedPrimaries(t *testing.T) {
	broken := &fakeEngine{name: "paddle_vl", attempt: Attempt{Err: "down"}}
	blank := &fakeEngine{name: "tesseract", attempt: Attempt{Text: " \n"}}
	rescue := &fakeEngine{name: "google_vision", attempt: Attempt{Text: "JOLLIBEE\nTOTAL 250.00"}}
	svc := NewService([]Engine{broken, blank}, rescue, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.TotalFailure)
	assert.Equal(t, "google_vision", res.EngineUsed)
	assert.Equal(t, "JOLLIBEE\nTOTAL 250.00", res.Text)
	assert.False(t, res.Consensus)
	assert.Equal(t, []string{"paddle_vl", "tesseract", "google_vision"}, res.Attempted)
}

func TestServiceCrosscheckCannotRescueWithBlankReading(t *testing.T) {
	broken := &fakeEngine{name: "tesseract", attempt: Attempt{Err: "missing binary"}}
	blankCheck := &fakeEngine{name: "google_vision", attempt: Attempt{Text: ""}}
	svc := NewService([]Engine{broken}, blankCheck, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.True(t, res.TotalFailure)
	assert.Equal(t, 1, blankCheck.calls)
	assert.Equal(t, []string{"tesseract", "google_vision"}, res.Attempted)
}

func TestServiceCrosscheckAgreement(t *testing.T) {
	text := "MERALCO ELECTRIC COMPANY\nTOTAL DUE 1,245.67\n03/15/2024"
	primary := &fakeEngine{name: "tesseract", attempt: Attempt{Text: text}}

	agreeing := &fakeEngine{name: "google_vision", attempt: Attempt{Text: text + "\n"}}
	svc := NewService([]Engine{primary}, agreeing, 0.82, discard())
	res := svc.Run(context.Background(), []byte("img"))
	assert.True(t, res.Consensus)
	assert.Equal(t, []string{"tesseract", "google_vision"}, res.Attempted)

	disagreeing := &fakeEngine{name: "google_vision", attempt: Attempt{Text: "completely unrelated reading of another receipt"}}
	svc = NewService([]Engine{primary}, disagreeing, 0.82, discard())
	res = svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.Consensus)
}

func TestServiceCrosscheckSkippedWhenSameEngine(t *testing.T) {
	primary := &fakeEngine{name: "tesseract", attempt: Attempt{Text: "SM SUPERMARKET"}}
	svc := NewService([]Engine{primary}, primary, 0.82, discard())

	res := svc.Run(context.Background(), []byte("img"))
	assert.False(t, res.Consensus)
	assert.Equal(t, 1, primary.calls)
}

func TestTextSimilarity(t *testing.T) {
	require.Equal(t, 1.0, TextSimilarity("", ""))
	assert.Equal(t, 0.0, TextSimilarity("MERALCO", ""))
	assert.Equal(t, 1.0, TextSimilarity("MERALCO bill", "meralco  BILL"))

	near := TextSimilarity(
		"MERALCO ELECTRIC COMPANY TOTAL DUE 1,245.67",
		"MERALCO ELECTRIC C0MPANY TOTAL DUE 1,245.67",
	)
	assert.Greater(t, near, 0.82)

	far := TextSimilarity("MERALCO ELECTRIC COMPANY", "JOLLIBEE FOODS CORPORATION")
	assert.Less(t, far, 0.5)
}
