package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/resibo-ph/resibo/internal/common"
)

// PaddleVL talks to a PaddleOCR-VL sidecar over HTTP. The sidecar accepts a
// base64 image and returns the merged text of every region it recognized.
type PaddleVL struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewPaddleVL(cfg common.OCRConfig, logger *slog.Logger) *PaddleVL {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.EngineTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PaddleVL{
		url:    cfg.PaddleVLURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *PaddleVL) Name() string { return EnginePaddleVL }

type paddleRequest struct {
	Image string `json:"image"` // base64
}

type paddleResponse struct {
	OK         bool     `json:"ok"`
	Text       string   `json:"text"`
	Confidence *float32 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (p *PaddleVL) Extract(ctx context.Context, image []byte) Attempt {
	attempt := Attempt{Engine: p.Name()}

	body, err := json.Marshal(paddleRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		attempt.Err = fmt.Sprintf("encode: %v", err)
		return attempt
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		attempt.Err = fmt.Sprintf("request: %v", err)
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
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
	if resp.StatusCode != http.StatusOK {
		attempt.Err = fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(raw), 256))
		return attempt
	}

	var out paddleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		attempt.Err = fmt.Sprintf("decode: %v", err)
		return attempt
	}
	if !out.OK {
		attempt.Err = fmt.Sprintf("engine: %s", out.Error)
		return attempt
	}
	attempt.Text = Normalize(out.Text)
	attempt.Confidence = out.Confidence
	return attempt
}
