// Package export produces XLSX workbooks from a user's receipt history.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/resibo-ph/resibo/internal/entity"
	"github.com/resibo-ph/resibo/internal/repository"
)

const pageSize = 500

// Service is a tiny façade over the receipt repository that renders XLSX
// bytes for exports.
type Service struct {
	receipts repository.ReceiptRepository
	logger   *slog.Logger
}

func NewService(receipts repository.ReceiptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, logger: logger}
}

// ReceiptsXLSX returns an XLSX workbook with every receipt belonging to the
// user, newest first.
func (s *Service) ReceiptsXLSX(ctx context.Context, userID string) ([]byte, error) {
	start := time.Now()

	var all []entity.Receipt
	for offset := 0; ; offset += pageSize {
		page, err := s.receipts.ListByUser(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("query receipts: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 && sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Transaction Date",
		"Merchant",
		"Total",
		"Category",
		"Source",
		"Confidence",
		"Uploaded At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range all {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, deref(r.TxDate))
		write(2, deref(r.Merchant))
		if r.Total != nil {
			write(3, *r.Total)
		}
		write(4, r.Category)
		write(5, r.Source)
		write(6, r.Confidence)
		write(7, r.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "C", 12)
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "G", "G", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID,
		"rows", len(all),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
