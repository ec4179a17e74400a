package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	in := "MERALCO   \r\n\r\n\r\n\r\nTOTAL\tDUE  1,245.67   \r\n"
	assert.Equal(t, "MERALCO\n\nTOTAL DUE 1,245.67", Normalize(in))
	assert.Equal(t, "", Normalize(""))
}

func TestSanitizeHeader(t *testing.T) {
	assert.Equal(t, "7-ELEVEN", SanitizeHeader("7 ELEWEM"))
	assert.Equal(t, "MERALCO", SanitizeHeader("  meralco "))
	assert.Equal(t, "SM HYPERMARKET", SanitizeHeader("SM  Hypermarket"))
	assert.Equal(t, "MERCURY-DRUG", SanitizeHeader("Mercury—Drug"))
}
