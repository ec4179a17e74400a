package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/resibo-ph/resibo/internal/common"
)

// GoogleVision calls the Cloud Vision images.annotate endpoint with
// TEXT_DETECTION. The service client is built lazily on first use so that a
// bad key surfaces as a per-attempt error instead of a startup failure.
type GoogleVision struct {
	apiKey  string
	lang    string
	timeout time.Duration
	logger  *slog.Logger

	once    sync.Once
	svc     *vision.Service
	initErr error
}

func NewGoogleVision(cfg common.OCRConfig, logger *slog.Logger) *GoogleVision {
	if logger == nil {
		logger = slog.Default()
	}
	lang := cfg.TesseractLang
	if lang == "" {
		lang = "eng"
	}
	return &GoogleVision{apiKey: cfg.VisionAPIKey, lang: lang, timeout: cfg.EngineTimeout, logger: logger}
}

func (g *GoogleVision) Name() string { return EngineGoogleVision }

func (g *GoogleVision) service(ctx context.Context) (*vision.Service, error) {
	g.once.Do(func() {
		g.svc, g.initErr = vision.NewService(ctx, option.WithAPIKey(g.apiKey))
	})
	return g.svc, g.initErr
}

func (g *GoogleVision) Extract(ctx context.Context, image []byte) Attempt {
	attempt := Attempt{Engine: g.Name()}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	svc, err := g.service(ctx)
	if err != nil {
		attempt.Err = fmt.Sprintf("client: %v", err)
		return attempt
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
			ImageContext: &vision.ImageContext{
				LanguageHints: []string{g.lang},
			},
		}},
	}

	resp, err := svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		attempt.Err = fmt.Sprintf("annotate: %v", err)
		return attempt
	}
	if len(resp.Responses) == 0 {
		attempt.Err = "annotate: empty response"
		return attempt
	}
	r := resp.Responses[0]
	if r.Error != nil {
		attempt.Err = fmt.Sprintf("api: %s", r.Error.Message)
		return attempt
	}

	switch {
	case r.FullTextAnnotation != nil:
		attempt.Text = Normalize(r.FullTextAnnotation.Text)
	case len(r.TextAnnotations) > 0:
		attempt.Text = Normalize(r.TextAnnotations[0].Description)
	}
	return attempt
}
