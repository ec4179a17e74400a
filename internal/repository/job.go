package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/entity"
)

// JobRepository owns the job state machine rows. Claiming and the
// processing->terminal flips are each a single guarded UPDATE so that two
// workers can never own the same job.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error)
	// Claim attempts the queued->processing transition. Returns false when
	// the job was not in queued (already claimed or terminal).
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	// ClaimNext claims the oldest queued job, or returns nil when none.
	ClaimNext(ctx context.Context) (*entity.Job, error)
	// Complete attaches the result and flips processing->completed; the
	// denormalized receipt row is written in the same transaction.
	Complete(ctx context.Context, id uuid.UUID, result *entity.PipelineResult, receipt *entity.Receipt) error
	// Fail flips processing->failed with a caller-facing message.
	Fail(ctx context.Context, id uuid.UUID, message string) error
	CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusQueued
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO jobs (id, user_id, filename, image_path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		job.ID.String(), job.UserID, job.Filename, job.ImagePath, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return err
	}
	r.log.Info("job created", "job_id", job.ID, "filename", job.Filename)
	return nil
}

const jobColumns = `id, user_id, filename, image_path, status, error_message, result_json, created_at, started_at, finished_at`

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id.String())
	return scanJob(row)
}

func (r *jobRepo) GetForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+jobColumns+` FROM jobs WHERE id = ? AND user_id = ?`), id.String(), userID)
	return scanJob(row)
}

func (r *jobRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`),
		string(constants.JobStatusProcessing), now,
		id.String(), string(constants.JobStatusQueued),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *jobRepo) ClaimNext(ctx context.Context) (*entity.Job, error) {
	for {
		var idStr string
		err := r.db.QueryRowContext(ctx, r.db.Rebind(`
			SELECT id FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`),
			string(constants.JobStatusQueued),
		).Scan(&idStr)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("malformed job id %q: %w", idStr, err)
		}
		ok, err := r.Claim(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.GetByID(ctx, id)
		}
		// Lost the race to another worker; try the next candidate.
	}
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, result *entity.PipelineResult, receipt *entity.Receipt) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE jobs SET status = ?, result_json = ?, finished_at = ?
		WHERE id = ? AND status = ?`),
		string(constants.JobStatusCompleted), string(payload), now,
		id.String(), string(constants.JobStatusProcessing),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("job %s is not processing", id)
	}

	if receipt != nil {
		if receipt.CreatedAt.IsZero() {
			receipt.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO receipts (id, user_id, merchant, merchant_norm, tx_date, total,
				category, category_source, confidence, ocr_confidence, ocr_text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			receipt.ID.String(), receipt.UserID,
			receipt.Merchant, receipt.MerchantNorm, receipt.TxDate, receipt.Total,
			receipt.Category, receipt.Source, receipt.Confidence,
			receipt.OCRConfidence, receipt.OCRText, receipt.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Info("job completed", "job_id", id)
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE jobs SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?`),
		string(constants.JobStatusFailed), message, now,
		id.String(), string(constants.JobStatusProcessing),
	)
	if err != nil {
		r.log.Error("job fail-transition errored", "job_id", id, "err", err)
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("job %s is not processing", id)
	}
	r.log.Warn("job failed", "job_id", id, "error", message)
	return nil
}

func (r *jobRepo) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[constants.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[constants.JobStatus(status)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		idStr      string
		job        entity.Job
		status     string
		errMsg     sql.NullString
		resultJSON sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&idStr, &job.UserID, &job.Filename, &job.ImagePath, &status,
		&errMsg, &resultJSON, &job.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("malformed job id %q: %w", idStr, err)
	}
	job.ID = id
	job.Status = constants.JobStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result entity.PipelineResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}
