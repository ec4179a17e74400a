package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/resibo-ph/resibo/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) exportReceipts(c echo.Context) error {
	data, err := s.deps.Export.ReceiptsXLSX(c.Request().Context(), currentUser(c))
	if err != nil {
		s.logger.Error("export failed", "error", err)
		return common.InternalError("export failed")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="receipts.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
