package classifier

import (
	"log/slog"
	"sync"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/entity"
	"github.com/resibo-ph/resibo/internal/rules"
)

// Resolver is the two-stage category decision: deterministic rules first,
// the trained model second, and a fixed low-confidence fallback when neither
// can decide. Confidence is always in [0,1] with its source tagged.
type Resolver struct {
	rules  *rules.Engine
	logger *slog.Logger

	mu    sync.RWMutex
	model *Model // nil until a model is trained or loaded
}

func NewResolver(ruleEngine *rules.Engine, model *Model, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{rules: ruleEngine, model: model, logger: logger}
}

// SetModel swaps in a freshly trained model. In-flight classifications keep
// the model they started with.
func (r *Resolver) SetModel(m *Model) {
	r.mu.Lock()
	r.model = m
	r.mu.Unlock()
}

// Model returns the active model, which may be nil.
func (r *Resolver) Model() *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

// Classify decides the category for one receipt text. merchantNorm may be
// empty; the rule engine then skips its brand stage.
func (r *Resolver) Classify(text, merchantNorm string) entity.ClassificationResult {
	if m, ok := r.rules.Apply(text, merchantNorm); ok {
		return entity.ClassificationResult{
			Category:   m.Category,
			Source:     m.Source,
			Confidence: constants.RuleConfidence,
		}
	}

	if model := r.Model(); model != nil {
		if label, conf, ok := model.Predict(text); ok {
			r.logger.Debug("model classification", "category", label, "confidence", conf)
			return entity.ClassificationResult{
				Category:   label,
				Source:     constants.SourceModel,
				Confidence: conf,
			}
		}
	}

	return entity.ClassificationResult{
		Category:   string(constants.Others),
		Source:     constants.SourceModel,
		Confidence: constants.FallbackConfidence,
	}
}
