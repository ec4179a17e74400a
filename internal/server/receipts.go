package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

const (
	defaultPageSize      = 50
	maxPageSize          = 200
	defaultLowConfidence = 0.6
)

func (s *Server) listReceipts(c echo.Context) error {
	limit := intQuery(c, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	receipts, err := s.deps.Receipts.ListByUser(c.Request().Context(), currentUser(c), limit, offset)
	if err != nil {
		s.logger.Error("receipt list failed", "error", err)
		return common.InternalError("receipt list failed")
	}
	if receipts == nil {
		receipts = []entity.Receipt{}
	}
	return c.JSON(http.StatusOK, receipts)
}

// lowConfidenceReceipts surfaces classifications worth reviewing.
func (s *Server) lowConfidenceReceipts(c echo.Context) error {
	threshold := defaultLowConfidence
	if raw := c.QueryParam("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			return common.BadRequestError("threshold must be in (0, 1]")
		}
		threshold = parsed
	}

	receipts, err := s.deps.Receipts.LowConfidence(c.Request().Context(), currentUser(c), threshold, defaultPageSize)
	if err != nil {
		s.logger.Error("low confidence list failed", "error", err)
		return common.InternalError("receipt list failed")
	}
	if receipts == nil {
		receipts = []entity.Receipt{}
	}
	return c.JSON(http.StatusOK, receipts)
}

func (s *Server) getReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}

	receipt, err := s.deps.Receipts.GetForUser(c.Request().Context(), id, currentUser(c))
	if err != nil {
		s.logger.Error("receipt lookup failed", "receipt_id", id, "error", err)
		return common.InternalError("receipt lookup failed")
	}
	if receipt == nil {
		return common.NotFoundError("receipt not found")
	}
	return c.JSON(http.StatusOK, receipt)
}

type correctionRequest struct {
	Category string `json:"category"`
}

// correctReceipt applies a manual category correction. The corrected pair is
// also appended to the feedback log and folded into the live model so the
// next classification benefits immediately.
func (s *Server) correctReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}

	var req correctionRequest
	if err := c.Bind(&req); err != nil {
		return common.BadRequestError("invalid body")
	}
	name := strings.TrimSpace(req.Category)
	if name == "" {
		return common.BadRequestError("category is required")
	}

	ctx := c.Request().Context()
	userID := currentUser(c)

	category, isCustom, err := s.resolveCategory(c, userID, name)
	if err != nil {
		return err
	}

	receipt, err := s.deps.Receipts.GetForUser(ctx, id, userID)
	if err != nil {
		s.logger.Error("receipt lookup failed", "receipt_id", id, "error", err)
		return common.InternalError("receipt lookup failed")
	}
	if receipt == nil {
		return common.NotFoundError("receipt not found")
	}

	err = s.deps.Receipts.UpdateCategory(ctx, id, userID, category, string(constants.SourceManualCorrection), 1.0)
	if err != nil {
		s.logger.Error("receipt correction failed", "receipt_id", id, "error", err)
		return common.InternalError("correction failed")
	}
	if isCustom {
		if err := s.deps.Labels.IncrementUsage(ctx, userID, category); err != nil {
			s.logger.Warn("label usage update failed", "label", category, "error", err)
		}
	}

	if receipt.OCRText != "" {
		s.absorbFeedback(ctx, userID, receipt.OCRText, category)
	}

	updated, err := s.deps.Receipts.GetForUser(ctx, id, userID)
	if err != nil || updated == nil {
		s.logger.Error("corrected receipt re-read failed", "receipt_id", id, "error", err)
		return common.InternalError("correction failed")
	}
	return c.JSON(http.StatusOK, updated)
}

// resolveCategory accepts a builtin category (with synonym folding) or one of
// the user's custom labels, by exact name.
func (s *Server) resolveCategory(c echo.Context, userID, name string) (string, bool, error) {
	if builtin, ok := constants.Canonicalize(name); ok {
		return string(builtin), false, nil
	}
	exists, err := s.deps.Labels.ExistsName(c.Request().Context(), userID, name)
	if err != nil {
		s.logger.Error("label lookup failed", "label", name, "error", err)
		return "", false, common.InternalError("label lookup failed")
	}
	if !exists {
		return "", false, common.BadRequestErrorf("unknown category %q", name)
	}
	return name, true, nil
}
