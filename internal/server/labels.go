package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

const maxLabelNameLen = 40

type labelRequest struct {
	Name        string  `json:"name"`
	Color       *string `json:"color,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (s *Server) listLabels(c echo.Context) error {
	labels, err := s.deps.Labels.ListByUser(c.Request().Context(), currentUser(c))
	if err != nil {
		s.logger.Error("label list failed", "error", err)
		return common.InternalError("label list failed")
	}
	if labels == nil {
		labels = []entity.CustomLabel{}
	}
	return c.JSON(http.StatusOK, labels)
}

func (s *Server) createLabel(c echo.Context) error {
	var req labelRequest
	if err := c.Bind(&req); err != nil {
		return common.BadRequestError("invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxLabelNameLen {
		return common.BadRequestErrorf("name must be 1-%d characters", maxLabelNameLen)
	}
	// Builtin names stay reserved so corrections are unambiguous.
	if constants.IsBuiltin(name) {
		return common.ConflictError("name collides with a builtin category")
	}

	label := &entity.CustomLabel{
		UserID:      currentUser(c),
		Name:        name,
		Color:       req.Color,
		Description: req.Description,
	}
	if err := s.deps.Labels.Create(c.Request().Context(), label); err != nil {
		if common.HTTPStatusFor(err) == http.StatusConflict {
			return common.ConflictError("label already exists")
		}
		s.logger.Error("label create failed", "error", err)
		return common.InternalError("label create failed")
	}
	return c.JSON(http.StatusCreated, label)
}

func (s *Server) getLabel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}

	label, err := s.deps.Labels.GetForUser(c.Request().Context(), id, currentUser(c))
	if err != nil {
		s.logger.Error("label lookup failed", "label_id", id, "error", err)
		return common.InternalError("label lookup failed")
	}
	if label == nil {
		return common.NotFoundError("label not found")
	}
	return c.JSON(http.StatusOK, label)
}

// listCategories returns the builtin categories followed by the caller's
// custom labels.
func (s *Server) listCategories(c echo.Context) error {
	labels, err := s.deps.Labels.ListByUser(c.Request().Context(), currentUser(c))
	if err != nil {
		s.logger.Error("label list failed", "error", err)
		return common.InternalError("category list failed")
	}

	categories := constants.AsStringSlice()
	for _, label := range labels {
		categories = append(categories, label.Name)
	}
	return c.JSON(http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) updateLabel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}
	var req labelRequest
	if err := c.Bind(&req); err != nil {
		return common.BadRequestError("invalid body")
	}

	ctx := c.Request().Context()
	userID := currentUser(c)

	label, err := s.deps.Labels.GetForUser(ctx, id, userID)
	if err != nil {
		s.logger.Error("label lookup failed", "label_id", id, "error", err)
		return common.InternalError("label lookup failed")
	}
	if label == nil {
		return common.NotFoundError("label not found")
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if len(name) > maxLabelNameLen {
			return common.BadRequestErrorf("name must be 1-%d characters", maxLabelNameLen)
		}
		if constants.IsBuiltin(name) {
			return common.ConflictError("name collides with a builtin category")
		}
		label.Name = name
	}
	if req.Color != nil {
		label.Color = req.Color
	}
	if req.Description != nil {
		label.Description = req.Description
	}

	if err := s.deps.Labels.Update(ctx, label); err != nil {
		status := common.HTTPStatusFor(err)
		switch status {
		case http.StatusConflict:
			return common.ConflictError("label already exists")
		case http.StatusNotFound:
			return common.NotFoundError("label not found")
		}
		s.logger.Error("label update failed", "label_id", id, "error", err)
		return common.InternalError("label update failed")
	}
	return c.JSON(http.StatusOK, label)
}

func (s *Server) deleteLabel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}

	err = s.deps.Labels.Delete(c.Request().Context(), id, currentUser(c))
	if err != nil {
		if common.HTTPStatusFor(err) == http.StatusNotFound {
			return common.NotFoundError("label not found")
		}
		s.logger.Error("label delete failed", "label_id", id, "error", err)
		return common.InternalError("label delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}
