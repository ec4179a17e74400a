package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/repository"
)

func (s *Server) statsSummary(c echo.Context) error {
	summary, err := s.deps.Receipts.StatsSummary(c.Request().Context(), currentUser(c))
	if err != nil {
		s.logger.Error("stats summary failed", "error", err)
		return common.InternalError("stats failed")
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) statsByCategory(c echo.Context) error {
	stats, err := s.deps.Receipts.StatsByCategory(c.Request().Context(), currentUser(c))
	if err != nil {
		s.logger.Error("category stats failed", "error", err)
		return common.InternalError("stats failed")
	}
	if stats == nil {
		stats = []repository.CategoryStat{}
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) statsByMonth(c echo.Context) error {
	year := time.Now().UTC().Year()
	if raw := c.QueryParam("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > year+1 {
			return common.BadRequestError("year is out of range")
		}
		year = parsed
	}

	stats, err := s.deps.Receipts.StatsByMonth(c.Request().Context(), currentUser(c), year)
	if err != nil {
		s.logger.Error("month stats failed", "error", err)
		return common.InternalError("stats failed")
	}
	if stats == nil {
		stats = []repository.MonthStat{}
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) topMerchants(c echo.Context) error {
	limit := intQuery(c, "limit", 10)
	if limit < 1 || limit > maxPageSize {
		limit = 10
	}

	stats, err := s.deps.Receipts.TopMerchants(c.Request().Context(), currentUser(c), limit)
	if err != nil {
		s.logger.Error("merchant stats failed", "error", err)
		return common.InternalError("stats failed")
	}
	if stats == nil {
		stats = []repository.MerchantStat{}
	}
	return c.JSON(http.StatusOK, stats)
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
