package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/common"
)

// getJob is the polling endpoint. Jobs are scoped to their owner; a foreign
// job id reads the same as a nonexistent one.
func (s *Server) getJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return common.BadRequestError("id must be a UUID")
	}

	job, err := s.deps.Jobs.GetForUser(c.Request().Context(), id, currentUser(c))
	if err != nil {
		s.logger.Error("job lookup failed", "job_id", id, "error", err)
		return common.InternalError("job lookup failed")
	}
	if job == nil {
		return common.NotFoundError("job not found")
	}
	return c.JSON(http.StatusOK, job)
}
