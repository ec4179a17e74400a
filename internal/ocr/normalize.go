package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(`[ ]{2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reSevenEl    = regexp.MustCompile(`\b7\s*ELEVEN\b`)
)

// Normalize cleans raw engine output into the canonical text form shared by
// field extraction and classification.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// glyph confusions seen on Philippine thermal receipts
var glyphReplacer = strings.NewReplacer(
	"¢", "7",
	"€", "C",
	"—", "-",
	"–", "-",
	"_", "-",
	"~", "-",
	"|", "I",
	"0/", "Q",
	"ELEWEM", "ELEVEN",
	"ELEWEOD", "ELEVEN",
	"ELEWEN", "ELEVEN",
	"ELEVENN", "ELEVEN",
)

// SanitizeHeader uppercases one header line and repairs the glyphs OCR
// commonly misreads, so brand matching sees a stable form.
func SanitizeHeader(s string) string {
	if s == "" {
		return s
	}
	u := strings.ToUpper(s)
	u = glyphReplacer.Replace(u)
	u = reSevenEl.ReplaceAllString(u, "7-ELEVEN")
	return strings.TrimSpace(reSpaces.ReplaceAllString(u, " "))
}
