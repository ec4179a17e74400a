package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/internal/entity"
)

// CategoryStat is one row of the per-category rollup.
type CategoryStat struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// MonthStat is one row of the per-month rollup.
type MonthStat struct {
	Month string  `json:"month"` // "01".."12"
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// MerchantStat is one row of the top-merchants rollup.
type MerchantStat struct {
	Merchant string  `json:"merchant"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// Summary aggregates a user's receipt history.
type Summary struct {
	Receipts      int     `json:"receipts"`
	TotalSpend    float64 `json:"total_spend"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// ReceiptRepository is the read side over completed pipeline results, plus
// the manual-correction write path.
type ReceiptRepository interface {
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Receipt, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]entity.Receipt, error)
	LowConfidence(ctx context.Context, userID string, threshold float64, limit int) ([]entity.Receipt, error)
	// UpdateCategory applies a user correction to an existing receipt.
	UpdateCategory(ctx context.Context, id uuid.UUID, userID, category, source string, confidence float64) error
	StatsSummary(ctx context.Context, userID string) (*Summary, error)
	StatsByCategory(ctx context.Context, userID string) ([]CategoryStat, error)
	StatsByMonth(ctx context.Context, userID string, year int) ([]MonthStat, error)
	TopMerchants(ctx context.Context, userID string, limit int) ([]MerchantStat, error)
}

type receiptRepo struct {
	db  *DB
	log *slog.Logger
}

func NewReceiptRepository(db *DB, log *slog.Logger) ReceiptRepository {
	if log == nil {
		log = slog.Default()
	}
	return &receiptRepo{db: db, log: log}
}

const receiptColumns = `id, user_id, merchant, merchant_norm, tx_date, total,
	category, category_source, confidence, ocr_confidence, ocr_text, created_at`

func (r *receiptRepo) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Receipt, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+receiptColumns+` FROM receipts WHERE id = ? AND user_id = ?`),
		id.String(), userID)
	rec, err := scanReceipt(row)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *receiptRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]entity.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+receiptColumns+` FROM receipts
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectReceipts(rows)
}

func (r *receiptRepo) LowConfidence(ctx context.Context, userID string, threshold float64, limit int) ([]entity.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+receiptColumns+` FROM receipts
		WHERE user_id = ? AND confidence < ?
		ORDER BY confidence ASC, created_at DESC LIMIT ?`),
		userID, threshold, limit)
	if err != nil {
		return nil, err
	}
	return collectReceipts(rows)
}

func (r *receiptRepo) UpdateCategory(ctx context.Context, id uuid.UUID, userID, category, source string, confidence float64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE receipts SET category = ?, category_source = ?, confidence = ?
		WHERE id = ? AND user_id = ?`),
		category, source, confidence, id.String(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("receipt %s not found", id)
	}
	r.log.Info("receipt recategorized", "receipt_id", id, "category", category, "source", source)
	return nil
}

func (r *receiptRepo) StatsSummary(ctx context.Context, userID string) (*Summary, error) {
	var s Summary
	var total, conf sql.NullFloat64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(AVG(confidence), 0)
		FROM receipts WHERE user_id = ?`), userID).
		Scan(&s.Receipts, &total, &conf)
	if err != nil {
		return nil, err
	}
	s.TotalSpend = total.Float64
	s.AvgConfidence = conf.Float64
	return &s, nil
}

func (r *receiptRepo) StatsByCategory(ctx context.Context, userID string) ([]CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT category, COUNT(*), COALESCE(SUM(total), 0)
		FROM receipts WHERE user_id = ?
		GROUP BY category ORDER BY SUM(total) DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CategoryStat
	for rows.Next() {
		var cs CategoryStat
		if err := rows.Scan(&cs.Category, &cs.Count, &cs.Total); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (r *receiptRepo) StatsByMonth(ctx context.Context, userID string, year int) ([]MonthStat, error) {
	// tx_date is stored as ISO text, so substr works on both dialects.
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT substr(tx_date, 6, 2) AS month, COUNT(*), COALESCE(SUM(total), 0)
		FROM receipts
		WHERE user_id = ? AND tx_date IS NOT NULL AND substr(tx_date, 1, 4) = ?
		GROUP BY month ORDER BY month`),
		userID, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MonthStat
	for rows.Next() {
		var ms MonthStat
		if err := rows.Scan(&ms.Month, &ms.Count, &ms.Total); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func (r *receiptRepo) TopMerchants(ctx context.Context, userID string, limit int) ([]MerchantStat, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT merchant_norm, COUNT(*), COALESCE(SUM(total), 0)
		FROM receipts
		WHERE user_id = ? AND merchant_norm IS NOT NULL
		GROUP BY merchant_norm ORDER BY SUM(total) DESC LIMIT ?`),
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MerchantStat
	for rows.Next() {
		var ms MerchantStat
		if err := rows.Scan(&ms.Merchant, &ms.Count, &ms.Total); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var (
		idStr    string
		rec      entity.Receipt
		merchant sql.NullString
		norm     sql.NullString
		txDate   sql.NullString
		total    sql.NullFloat64
		ocrConf  sql.NullFloat64
	)
	err := row.Scan(&idStr, &rec.UserID, &merchant, &norm, &txDate, &total,
		&rec.Category, &rec.Source, &rec.Confidence, &ocrConf, &rec.OCRText, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("malformed receipt id %q: %w", idStr, err)
	}
	rec.ID = id
	if merchant.Valid {
		rec.Merchant = &merchant.String
	}
	if norm.Valid {
		rec.MerchantNorm = &norm.String
	}
	if txDate.Valid {
		rec.TxDate = &txDate.String
	}
	if total.Valid {
		rec.Total = &total.Float64
	}
	if ocrConf.Valid {
		c := float32(ocrConf.Float64)
		rec.OCRConfidence = &c
	}
	return &rec, nil
}

func collectReceipts(rows *sql.Rows) ([]entity.Receipt, error) {
	defer func() { _ = rows.Close() }()
	var out []entity.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
