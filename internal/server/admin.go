package server

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/common"
)

// jobCounts reports queue depth per status.
func (s *Server) jobCounts(c echo.Context) error {
	counts, err := s.deps.Jobs.CountByStatus(c.Request().Context())
	if err != nil {
		s.logger.Error("job counts failed", "error", err)
		return common.InternalError("job counts failed")
	}
	return c.JSON(http.StatusOK, counts)
}

// reloadRules re-reads the rule table from disk. A broken file keeps the
// current table in place.
func (s *Server) reloadRules(c echo.Context) error {
	if err := s.deps.Rules.Reload(); err != nil {
		s.logger.Error("rules reload failed", "error", err)
		return common.BadRequestErrorf("rules reload failed: %v", err)
	}
	table := s.deps.Rules.Current()
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": table.Version,
		"brands":  len(table.Brands),
	})
}

// retrainModel rebuilds the model from the bootstrap corpus plus all
// accumulated feedback, persists the artifact, and swaps it into the live
// resolver.
func (s *Server) retrainModel(c echo.Context) error {
	ctx := c.Request().Context()

	var examples []classifier.Example
	if path := s.cfg.Model.BootstrapCSV; path != "" {
		if _, err := os.Stat(path); err == nil {
			bootstrap, err := classifier.ReadBootstrapCSV(path, s.logger)
			if err != nil {
				s.logger.Error("bootstrap read failed", "path", path, "error", err)
				return common.InternalError("bootstrap read failed")
			}
			examples = append(examples, bootstrap...)
		}
	}

	records, err := s.deps.Feedback.ListAll(ctx)
	if err != nil {
		s.logger.Error("feedback read failed", "error", err)
		return common.InternalError("feedback read failed")
	}
	examples = append(examples, classifier.FeedbackExamples(records)...)

	if len(examples) == 0 {
		return common.BadRequestError("no training examples available")
	}

	model, report, err := classifier.Train(examples, s.cfg.Model.HoldoutRatio, s.logger)
	if err != nil {
		s.logger.Error("training failed", "error", err)
		return common.InternalError("training failed")
	}
	if err := classifier.SaveModel(model, s.cfg.Model.Path); err != nil {
		s.logger.Error("model save failed", "path", s.cfg.Model.Path, "error", err)
		return common.InternalError("model save failed")
	}
	s.deps.Resolver.SetModel(model)

	s.logger.Info("model retrained",
		"examples", report.Examples,
		"holdout", report.Holdout,
		"accuracy", report.Accuracy,
	)
	return c.JSON(http.StatusOK, report)
}
