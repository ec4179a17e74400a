package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/resibo-ph/resibo/internal/entity"
)

// FeedbackRepository is the append-only sink for (raw text, corrected
// category) training pairs. Writes here never sit on the classification path.
type FeedbackRepository interface {
	Append(ctx context.Context, rec *entity.FeedbackRecord) error
	ListAll(ctx context.Context) ([]entity.FeedbackRecord, error)
	Count(ctx context.Context) (int, error)
}

type feedbackRepo struct {
	db  *DB
	log *slog.Logger
}

func NewFeedbackRepository(db *DB, log *slog.Logger) FeedbackRepository {
	if log == nil {
		log = slog.Default()
	}
	return &feedbackRepo{db: db, log: log}
}

func (r *feedbackRepo) Append(ctx context.Context, rec *entity.FeedbackRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO feedback (user_id, text, category, created_at)
		VALUES (?, ?, ?, ?)`),
		rec.UserID, rec.Text, rec.Category, rec.CreatedAt)
	if err != nil {
		r.log.Error("feedback append failed", "err", err)
		return err
	}
	r.log.Info("feedback recorded", "category", rec.Category, "chars", len(rec.Text))
	return nil
}

func (r *feedbackRepo) ListAll(ctx context.Context) ([]entity.FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, text, category, created_at FROM feedback ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []entity.FeedbackRecord
	for rows.Next() {
		var rec entity.FeedbackRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Text, &rec.Category, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *feedbackRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n)
	return n, err
}
