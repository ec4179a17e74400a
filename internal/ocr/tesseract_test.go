package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resibo-ph/resibo/internal/common"
)

type fakeRunner struct {
	stdout map[string]string // keyed by last arg ("stdout" run vs "tsv" run)
	err    error
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	key := "text"
	if args[len(args)-1] == "tsv" {
		key = "tsv"
	}
	return []byte(f.stdout[key]), nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96\tMERALCO\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t50\t20\t88\tTOTAL\n" +
	"5\t1\t1\t1\t2\t2\t70\t40\t50\t20\t-1\t\n"

func TestTesseractExtract(t *testing.T) {
	eng := NewTesseract(common.OCRConfig{}, discard())
	eng.runner = &fakeRunner{stdout: map[string]string{
		"text": "MERALCO  \r\nTOTAL DUE 1,245.67\r\n",
		"tsv":  sampleTSV,
	}}

	attempt := eng.Extract(context.Background(), []byte("fake-image"))
	require.True(t, attempt.Succeeded())
	assert.Equal(t, "MERALCO\nTOTAL DUE 1,245.67", attempt.Text)
	require.NotNil(t, attempt.Confidence)
	assert.InDelta(t, 0.92, float64(*attempt.Confidence), 0.001)
}

func TestTesseractExtractFailure(t *testing.T) {
	eng := NewTesseract(common.OCRConfig{}, discard())
	eng.runner = &fakeRunner{err: errors.New("exit status 1")}

	attempt := eng.Extract(context.Background(), []byte("fake-image"))
	assert.False(t, attempt.Succeeded())
	assert.True(t, strings.HasPrefix(attempt.Err, "tesseract:"))
}

func TestMeanTSVConfidence(t *testing.T) {
	assert.InDelta(t, 0.92, float64(meanTSVConfidence(sampleTSV)), 0.001)
	assert.Zero(t, meanTSVConfidence("header only\n"))
}
