package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

// uploadReceipt accepts a multipart image, stores it, and enqueues a job.
// The response is the queued job; clients poll GET /jobs/:id for the result.
func (s *Server) uploadReceipt(c echo.Context) error {
	userID := currentUser(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return common.BadRequestError("file is required")
	}
	ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return common.BadRequestErrorf("unsupported file extension %q", ext)
	}
	if max := s.cfg.Server.MaxUploadBytes; max > 0 && fh.Size > max {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	src, err := fh.Open()
	if err != nil {
		return common.BadRequestError("unreadable upload")
	}
	defer func() { _ = src.Close() }()

	id := uuid.New()
	dir := filepath.Join(s.cfg.DataDir, "uploads")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.logger.Error("upload dir create failed", "dir", dir, "error", err)
		return common.InternalError("storing upload failed")
	}
	path := filepath.Join(dir, id.String()+"."+ext)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		s.logger.Error("upload file create failed", "path", path, "error", err)
		return common.InternalError("storing upload failed")
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		s.logger.Error("upload write failed", "path", path, "error", err)
		return common.InternalError("storing upload failed")
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return common.InternalError("storing upload failed")
	}

	job := &entity.Job{
		ID:        id,
		UserID:    userID,
		Filename:  fh.Filename,
		ImagePath: path,
	}
	if err := s.deps.Jobs.Create(c.Request().Context(), job); err != nil {
		_ = os.Remove(path)
		s.logger.Error("job create failed", "error", err)
		return common.InternalError("enqueue failed")
	}
	if s.deps.Pool != nil {
		s.deps.Pool.Wake()
	}

	return c.JSON(http.StatusAccepted, job)
}
