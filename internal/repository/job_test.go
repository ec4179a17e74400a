package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), common.DatabaseConfig{
		DSN: filepath.Join(t.TempDir(), "test.db"),
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newQueuedJob(t *testing.T, repo JobRepository, userID string) *entity.Job {
	t.Helper()
	job := &entity.Job{
		UserID:    userID,
		Filename:  "receipt.jpg",
		ImagePath: "/tmp/receipt.jpg",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestJobCreateAndGet(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	job := newQueuedJob(t, repo, "user-1")
	require.NotEqual(t, uuid.Nil, job.ID)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, constants.JobStatusQueued, got.Status)
	assert.Equal(t, "receipt.jpg", got.Filename)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.ErrorMessage)
}

func TestJobGetForUserScoping(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	job := newQueuedJob(t, repo, "owner")

	got, err := repo.GetForUser(ctx, job.ID, "owner")
	require.NoError(t, err)
	require.NotNil(t, got)

	other, err := repo.GetForUser(ctx, job.ID, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestJobClaimTransitions(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	job := newQueuedJob(t, repo, "user-1")

	ok, err := repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)

	// A second claim must lose.
	ok, err = repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobClaimRaceHasOneWinner(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	job := newQueuedJob(t, repo, "user-1")

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(ctx, job.ID)
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one worker should win the claim")
}

func TestJobClaimNextOldestFirst(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	first := &entity.Job{UserID: "u", ImagePath: "a.jpg", CreatedAt: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, first))
	second := &entity.Job{UserID: "u", ImagePath: "b.jpg", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, constants.JobStatusProcessing, got.Status)

	got, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	got, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "queue drained")
}

func TestJobCompleteAttachesResultAndReceipt(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobRepository(db, nil)
	receipts := NewReceiptRepository(db, nil)
	ctx := context.Background()

	job := newQueuedJob(t, jobs, "user-1")
	ok, err := jobs.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	merchant := "MERALCO"
	total := 1245.67
	txDate := "2024-03-15"
	receiptID := uuid.New()
	result := &entity.PipelineResult{
		ReceiptID: receiptID,
		Extraction: entity.ExtractionResult{
			Text:       "MERALCO\nTOTAL DUE 1,245.67",
			EngineUsed: "tesseract",
		},
		Fields: entity.ParsedFields{Merchant: &merchant, Date: &txDate, Total: &total},
		Classification: entity.ClassificationResult{
			Category:   string(constants.Utilities),
			Source:     constants.SourceBrandRule,
			Confidence: constants.RuleConfidence,
		},
	}
	rec := &entity.Receipt{
		ID:         receiptID,
		UserID:     "user-1",
		Merchant:   &merchant,
		TxDate:     &txDate,
		Total:      &total,
		Category:   string(constants.Utilities),
		Source:     string(constants.SourceBrandRule),
		Confidence: constants.RuleConfidence,
		OCRText:    result.Extraction.Text,
	}
	require.NoError(t, jobs.Complete(ctx, job.ID, result, rec))

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, string(constants.Utilities), got.Result.Classification.Category)
	require.NotNil(t, got.Result.Fields.Total)
	assert.InDelta(t, 1245.67, *got.Result.Fields.Total, 0.001)

	stored, err := receipts.GetForUser(ctx, receiptID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "MERALCO", *stored.Merchant)

	// Completed is terminal.
	err = jobs.Complete(ctx, job.ID, result, nil)
	assert.Error(t, err)
	ok, err = jobs.Claim(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobFailOnlyFromProcessing(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	job := newQueuedJob(t, repo, "user-1")

	// queued -> failed is not a legal transition.
	err := repo.Fail(ctx, job.ID, "boom")
	assert.Error(t, err)

	ok, err := repo.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Fail(ctx, job.ID, "unsupported or corrupted image"))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "unsupported or corrupted image", *got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)

	// failed is terminal too.
	err = repo.Fail(ctx, job.ID, "again")
	assert.Error(t, err)
}

func TestJobCountByStatus(t *testing.T) {
	repo := NewJobRepository(newTestDB(t), nil)
	ctx := context.Background()

	newQueuedJob(t, repo, "u")
	claimed := newQueuedJob(t, repo, "u")
	ok, err := repo.Claim(ctx, claimed.ID)
	require.NoError(t, err)
	require.True(t, ok)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[constants.JobStatusQueued])
	assert.Equal(t, 1, counts[constants.JobStatusProcessing])
}
