package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resibo-ph/resibo/internal/common"
)

// Engine names accepted in OCR_ENGINES.
const (
	EnginePaddleVL     = "paddle_vl"
	EngineTesseract    = "tesseract"
	EngineOCRSpace     = "ocr_space"
	EngineGoogleVision = "google_vision"
)

// Attempt is the normalized outcome of one engine run. An engine that ran but
// read nothing reports Err == "" with empty Text; it ran cleanly, but the
// fallback chain moves past it since blank text cannot seed extraction.
type Attempt struct {
	Engine     string
	Text       string
	Confidence *float32 // 0..1 when the engine reports one
	Err        string   // empty on success
}

// Succeeded reports whether the engine ran without a provider error. The
// reading may still be empty.
func (a Attempt) Succeeded() bool { return a.Err == "" }

// Engine is one OCR provider. Extract never returns a Go error for provider
// failures; those are folded into Attempt.Err so the caller can fall back.
type Engine interface {
	Name() string
	Extract(ctx context.Context, image []byte) Attempt
}

// BuildEngines instantiates the configured engines. The first return value
// is the priority-ordered fallback chain; the second is the optional
// crosscheck engine. Unknown names are rejected so a typo in OCR_ENGINES
// fails at startup.
func BuildEngines(cfg common.OCRConfig, logger *slog.Logger) ([]Engine, Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	primaries := make([]Engine, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		eng, err := buildEngine(strings.TrimSpace(name), cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		primaries = append(primaries, eng)
	}

	var crosscheck Engine
	if cfg.CrosscheckEngine != "" {
		for _, eng := range primaries {
			if eng.Name() == cfg.CrosscheckEngine {
				crosscheck = eng
				break
			}
		}
		if crosscheck == nil {
			eng, err := buildEngine(cfg.CrosscheckEngine, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			crosscheck = eng
		}
	}
	return primaries, crosscheck, nil
}

func buildEngine(name string, cfg common.OCRConfig, logger *slog.Logger) (Engine, error) {
	switch name {
	case EngineTesseract:
		return NewTesseract(cfg, logger), nil
	case EnginePaddleVL:
		if cfg.PaddleVLURL == "" {
			return nil, fmt.Errorf("engine %q requires PADDLE_VL_URL", name)
		}
		return NewPaddleVL(cfg, logger), nil
	case EngineOCRSpace:
		if cfg.OCRSpaceAPIKey == "" {
			return nil, fmt.Errorf("engine %q requires OCR_SPACE_API_KEY", name)
		}
		return NewOCRSpace(cfg, logger), nil
	case EngineGoogleVision:
		if cfg.VisionAPIKey == "" {
			return nil, fmt.Errorf("engine %q requires GOOGLE_VISION_API_KEY", name)
		}
		return NewGoogleVision(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine: %q", name)
	}
}
