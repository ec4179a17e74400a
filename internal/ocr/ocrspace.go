package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/resibo-ph/resibo/internal/common"
)

// ocrSpaceMaxBytes is the hard cap of the OCR.space free tier. Larger uploads
// are rejected up front rather than bounced by the API.
const ocrSpaceMaxBytes = 1 << 20

// OCRSpace calls the hosted OCR.space parse API with a multipart upload.
type OCRSpace struct {
	url    string
	apiKey string
	lang   string
	client *http.Client
	logger *slog.Logger
}

func NewOCRSpace(cfg common.OCRConfig, logger *slog.Logger) *OCRSpace {
	if logger == nil {
		logger = slog.Default()
	}
	url := cfg.OCRSpaceURL
	if url == "" {
		url = "https://api.ocr.space/parse/image"
	}
	lang := cfg.TesseractLang
	if lang == "" {
		lang = "eng"
	}
	timeout := cfg.EngineTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OCRSpace{
		url:    url,
		apiKey: cfg.OCRSpaceAPIKey,
		lang:   lang,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (o *OCRSpace) Name() string { return EngineOCRSpace }

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"` // string or []string
	ErrorDetails          string          `json:"ErrorDetails"`
}

func (o *OCRSpace) Extract(ctx context.Context, image []byte) Attempt {
	attempt := Attempt{Engine: o.Name()}
	if len(image) > ocrSpaceMaxBytes {
		attempt.Err = fmt.Sprintf("image %d bytes exceeds provider cap %d", len(image), ocrSpaceMaxBytes)
		return attempt
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"language":          o.lang,
		"isOverlayRequired": "false",
		"OCREngine":         "2",
		"scale":             "true",
		"isTable":           "false",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			attempt.Err = fmt.Sprintf("encode: %v", err)
			return attempt
		}
	}
	fw, err := mw.CreateFormFile("file", "receipt.jpg")
	if err != nil {
		attempt.Err = fmt.Sprintf("encode: %v", err)
		return attempt
	}
	if _, err := fw.Write(image); err != nil {
		attempt.Err = fmt.Sprintf("encode: %v", err)
		return attempt
	}
	if err := mw.Close(); err != nil {
		attempt.Err = fmt.Sprintf("encode: %v", err)
		return attempt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, &body)
	if err != nil {
		attempt.Err = fmt.Sprintf("request: %v", err)
		return attempt
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("apikey", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		attempt.Err = fmt.Sprintf("network: %v", err)
		return attempt
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		attempt.Err = fmt.Sprintf("read: %v", err)
		return attempt
	}

	var out ocrSpaceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		attempt.Err = fmt.Sprintf("decode (http %d): %v", resp.StatusCode, err)
		return attempt
	}
	if out.IsErroredOnProcessing {
		attempt.Err = fmt.Sprintf("api: %s", ocrSpaceErrorString(out))
		return attempt
	}

	parts := make([]string, 0, len(out.ParsedResults))
	for _, pr := range out.ParsedResults {
		if pr.ParsedText != "" {
			parts = append(parts, pr.ParsedText)
		}
	}
	attempt.Text = Normalize(strings.Join(parts, "\n"))
	return attempt
}

func ocrSpaceErrorString(out ocrSpaceResponse) string {
	if len(out.ErrorMessage) > 0 {
		var single string
		if json.Unmarshal(out.ErrorMessage, &single) == nil {
			return single
		}
		var many []string
		if json.Unmarshal(out.ErrorMessage, &many) == nil && len(many) > 0 {
			return strings.Join(many, "; ")
		}
	}
	if out.ErrorDetails != "" {
		return out.ErrorDetails
	}
	return "unknown"
}
