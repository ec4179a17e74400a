package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

// LabelRepository manages user-scoped custom labels. Names are unique per
// user; deleting a label leaves already-classified receipts untouched.
type LabelRepository interface {
	Create(ctx context.Context, label *entity.CustomLabel) error
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.CustomLabel, error)
	ListByUser(ctx context.Context, userID string) ([]entity.CustomLabel, error)
	Update(ctx context.Context, label *entity.CustomLabel) error
	Delete(ctx context.Context, id uuid.UUID, userID string) error
	IncrementUsage(ctx context.Context, userID, name string) error
	ExistsName(ctx context.Context, userID, name string) (bool, error)
}

type labelRepo struct {
	db  *DB
	log *slog.Logger
}

func NewLabelRepository(db *DB, log *slog.Logger) LabelRepository {
	if log == nil {
		log = slog.Default()
	}
	return &labelRepo{db: db, log: log}
}

const labelColumns = `id, user_id, name, color, description, usage_count, created_at`

func (r *labelRepo) Create(ctx context.Context, label *entity.CustomLabel) error {
	if label.ID == uuid.Nil {
		label.ID = uuid.New()
	}
	if label.CreatedAt.IsZero() {
		label.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO custom_labels (id, user_id, name, color, description, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`),
		label.ID.String(), label.UserID, label.Name, label.Color, label.Description, label.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewAppError("LABEL_EXISTS",
				fmt.Sprintf("label %q already exists", label.Name), common.ErrConflict)
		}
		return err
	}
	r.log.Info("custom label created", "label_id", label.ID, "name", label.Name)
	return nil
}

func (r *labelRepo) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.CustomLabel, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+labelColumns+` FROM custom_labels WHERE id = ? AND user_id = ?`),
		id.String(), userID)
	return scanLabel(row)
}

func (r *labelRepo) ListByUser(ctx context.Context, userID string) ([]entity.CustomLabel, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+labelColumns+` FROM custom_labels WHERE user_id = ? ORDER BY name`), userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []entity.CustomLabel
	for rows.Next() {
		label, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *label)
	}
	return out, rows.Err()
}

func (r *labelRepo) Update(ctx context.Context, label *entity.CustomLabel) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE custom_labels SET name = ?, color = ?, description = ?
		WHERE id = ? AND user_id = ?`),
		label.Name, label.Color, label.Description, label.ID.String(), label.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return common.NewAppError("LABEL_EXISTS",
				fmt.Sprintf("label %q already exists", label.Name), common.ErrConflict)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return common.NewAppError("LABEL_NOT_FOUND", "label not found", common.ErrNotFound)
	}
	return nil
}

func (r *labelRepo) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM custom_labels WHERE id = ? AND user_id = ?`),
		id.String(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return common.NewAppError("LABEL_NOT_FOUND", "label not found", common.ErrNotFound)
	}
	r.log.Info("custom label deleted", "label_id", id)
	return nil
}

func (r *labelRepo) IncrementUsage(ctx context.Context, userID, name string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE custom_labels SET usage_count = usage_count + 1
		WHERE user_id = ? AND name = ?`),
		userID, name)
	return err
}

func (r *labelRepo) ExistsName(ctx context.Context, userID, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT COUNT(*) FROM custom_labels WHERE user_id = ? AND name = ?`),
		userID, name).Scan(&n)
	return n > 0, err
}

func scanLabel(row rowScanner) (*entity.CustomLabel, error) {
	var (
		idStr string
		label entity.CustomLabel
		color sql.NullString
		desc  sql.NullString
	)
	err := row.Scan(&idStr, &label.UserID, &label.Name, &color, &desc, &label.UsageCount, &label.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("malformed label id %q: %w", idStr, err)
	}
	label.ID = id
	if color.Valid {
		label.Color = &color.String
	}
	if desc.Valid {
		label.Description = &desc.String
	}
	return &label, nil
}

// isUniqueViolation matches both sqlite and postgres unique-constraint errors
// without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
