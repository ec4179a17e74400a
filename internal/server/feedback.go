package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

type feedbackRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// postFeedback appends one (text, category) training pair. The pair also
// updates the live model immediately; the durable log is what retraining
// reads.
func (s *Server) postFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return common.BadRequestError("invalid body")
	}
	text := strings.TrimSpace(req.Text)
	name := strings.TrimSpace(req.Category)
	if text == "" || name == "" {
		return common.BadRequestError("text and category are required")
	}

	userID := currentUser(c)
	category, _, err := s.resolveCategory(c, userID, name)
	if err != nil {
		return err
	}

	s.absorbFeedback(c.Request().Context(), userID, text, category)
	return c.NoContent(http.StatusAccepted)
}

// absorbFeedback writes the durable training pair and folds it into the
// in-memory model when one is loaded.
func (s *Server) absorbFeedback(ctx context.Context, userID, text, category string) {
	record := &entity.FeedbackRecord{UserID: userID, Text: text, Category: category}
	if err := s.deps.Feedback.Append(ctx, record); err != nil {
		s.logger.Error("feedback append failed", "error", err)
		return
	}
	if s.deps.Resolver != nil {
		if model := s.deps.Resolver.Model(); model != nil {
			model.Learn(text, category)
		}
	}
}
