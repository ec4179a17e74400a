package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resibo-ph/resibo/constants"
	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
	"github.com/resibo-ph/resibo/internal/export"
	"github.com/resibo-ph/resibo/internal/repository"
	"github.com/resibo-ph/resibo/internal/rules"
)

type fakeWaker struct{ woke int }

func (f *fakeWaker) Wake() { f.woke++ }

type testEnv struct {
	server *Server
	deps   Deps
	waker  *fakeWaker
	cfg    *common.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	tmp := t.TempDir()

	db, err := repository.Open(context.Background(), common.DatabaseConfig{
		DSN: filepath.Join(tmp, "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := rules.NewStore("", logger)
	require.NoError(t, err)

	receipts := repository.NewReceiptRepository(db, logger)
	waker := &fakeWaker{}
	deps := Deps{
		Jobs:     repository.NewJobRepository(db, logger),
		Receipts: receipts,
		Labels:   repository.NewLabelRepository(db, logger),
		Feedback: repository.NewFeedbackRepository(db, logger),
		Pool:     waker,
		Rules:    store,
		Resolver: classifier.NewResolver(rules.NewEngine(store, logger), nil, logger),
		Export:   export.NewService(receipts, logger),
	}
	cfg := &common.Config{
		Server: common.ServerConfig{Addr: ":0", MaxUploadBytes: 1 << 20},
		Model: common.ModelConfig{
			Path:         filepath.Join(tmp, "model.json"),
			BootstrapCSV: filepath.Join(tmp, "missing.csv"),
			HoldoutRatio: 0,
		},
		DataDir: tmp,
	}

	return &testEnv{
		server: NewServer(cfg, deps, logger),
		deps:   deps,
		waker:  waker,
		cfg:    cfg,
	}
}

// testToken builds an unsigned JWT carrying the given subject; without a
// userinfo endpoint configured the authenticator trusts its sub claim.
func testToken(sub string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"` + sub + `"}`))
	return header + "." + payload + ".sig"
}

func (e *testEnv) request(t *testing.T, method, path, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+testToken(user))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) jsonRequest(t *testing.T, method, path, user string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return e.request(t, method, path, user, body, echo.MIMEApplicationJSON)
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func multipartPNG(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

// insertReceipt drives a job through the full lifecycle so a receipt row
// exists for read-side tests.
func (e *testEnv) insertReceipt(t *testing.T, userID, ocrText string) *entity.Receipt {
	t.Helper()
	ctx := context.Background()

	job := &entity.Job{UserID: userID, Filename: "r.jpg", ImagePath: "/tmp/r.jpg"}
	require.NoError(t, e.deps.Jobs.Create(ctx, job))
	claimed, err := e.deps.Jobs.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	receiptID := uuid.New()
	result := &entity.PipelineResult{
		ReceiptID: receiptID,
		Classification: entity.ClassificationResult{
			Category:   string(constants.Others),
			Source:     constants.SourceModel,
			Confidence: 0.3,
		},
	}
	receipt := &entity.Receipt{
		ID:         receiptID,
		UserID:     userID,
		Category:   string(constants.Others),
		Source:     string(constants.SourceModel),
		Confidence: 0.3,
		OCRText:    ocrText,
	}
	require.NoError(t, e.deps.Jobs.Complete(ctx, claimed.ID, result, receipt))
	return receipt
}

func TestHealthzNoAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/receipts", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/receipts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	out := httptest.NewRecorder()
	env.server.Echo().ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnauthorized, out.Code)
}

func TestUploadQueuesJob(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartPNG(t, "dinner.png")
	rec := env.request(t, http.MethodPost, "/api/v1/receipts", "user-1", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decodeJSON[entity.Job](t, rec)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.Equal(t, "dinner.png", job.Filename)
	assert.Equal(t, 1, env.waker.woke)

	stored, err := env.deps.Jobs.GetForUser(context.Background(), job.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.FileExists(t, stored.ImagePath)
}

func TestUploadRejectsExtension(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartPNG(t, "notes.pdf")
	rec := env.request(t, http.MethodPost, "/api/v1/receipts", "user-1", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.waker.woke)
}

func TestGetJobScopedToOwner(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartPNG(t, "dinner.png")
	rec := env.request(t, http.MethodPost, "/api/v1/receipts", "user-1", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJSON[entity.Job](t, rec)

	rec = env.request(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "user-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "user-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", "user-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReceipts(t *testing.T) {
	env := newTestEnv(t)
	env.insertReceipt(t, "user-1", "some text")
	env.insertReceipt(t, "user-2", "other text")

	rec := env.request(t, http.MethodGet, "/api/v1/receipts", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	receipts := decodeJSON[[]entity.Receipt](t, rec)
	assert.Len(t, receipts, 1)
}

func TestCorrectReceipt(t *testing.T) {
	env := newTestEnv(t)
	receipt := env.insertReceipt(t, "user-1", "jollibee chickenjoy meal")

	rec := env.jsonRequest(t, http.MethodPatch, "/api/v1/receipts/"+receipt.ID.String(), "user-1",
		map[string]string{"category": "Food"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodeJSON[entity.Receipt](t, rec)
	assert.Equal(t, "Food", updated.Category)
	assert.Equal(t, string(constants.SourceManualCorrection), updated.Source)
	assert.Equal(t, 1.0, updated.Confidence)

	// The corrected pair lands in the feedback log.
	records, err := env.deps.Feedback.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Food", records[0].Category)
	assert.Equal(t, "jollibee chickenjoy meal", records[0].Text)
}

func TestCorrectReceiptUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	receipt := env.insertReceipt(t, "user-1", "text")

	rec := env.jsonRequest(t, http.MethodPatch, "/api/v1/receipts/"+receipt.ID.String(), "user-1",
		map[string]string{"category": "Entertainment"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorrectReceiptWithCustomLabel(t *testing.T) {
	env := newTestEnv(t)
	receipt := env.insertReceipt(t, "user-1", "pet food and vitamins")

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/labels", "user-1",
		map[string]string{"name": "Pets"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	label := decodeJSON[entity.CustomLabel](t, rec)

	rec = env.jsonRequest(t, http.MethodPatch, "/api/v1/receipts/"+receipt.ID.String(), "user-1",
		map[string]string{"category": "Pets"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodGet, "/api/v1/labels", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	labels := decodeJSON[[]entity.CustomLabel](t, rec)
	require.Len(t, labels, 1)
	assert.Equal(t, label.ID, labels[0].ID)
	assert.Equal(t, 1, labels[0].UsageCount)
}

func TestLabelLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/labels", "user-1",
		map[string]string{"name": "Subscriptions", "color": "#aabbcc"})
	require.Equal(t, http.StatusCreated, rec.Code)
	label := decodeJSON[entity.CustomLabel](t, rec)

	// Duplicate name conflicts, builtin names are reserved.
	rec = env.jsonRequest(t, http.MethodPost, "/api/v1/labels", "user-1",
		map[string]string{"name": "Subscriptions"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.jsonRequest(t, http.MethodPost, "/api/v1/labels", "user-1",
		map[string]string{"name": "Food"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.jsonRequest(t, http.MethodPatch, "/api/v1/labels/"+label.ID.String(), "user-1",
		map[string]string{"name": "Streaming"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Streaming", decodeJSON[entity.CustomLabel](t, rec).Name)

	rec = env.request(t, http.MethodDelete, "/api/v1/labels/"+label.ID.String(), "user-1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.request(t, http.MethodDelete, "/api/v1/labels/"+label.ID.String(), "user-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCategoriesIncludesCustomLabels(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/labels", "user-1",
		map[string]string{"name": "Pets"})
	require.Equal(t, http.StatusCreated, rec.Code)
	label := decodeJSON[entity.CustomLabel](t, rec)

	rec = env.request(t, http.MethodGet, "/api/v1/labels/"+label.ID.String(), "user-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.request(t, http.MethodGet, "/api/v1/labels/"+label.ID.String(), "user-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/categories", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[map[string][]string](t, rec)
	assert.Contains(t, body["categories"], "Food")
	assert.Contains(t, body["categories"], "Pets")

	rec = env.request(t, http.MethodGet, "/api/v1/categories", "user-2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeJSON[map[string][]string](t, rec)
	assert.NotContains(t, body["categories"], "Pets")
}

func TestPostFeedbackLearnsOnline(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Resolver.SetModel(classifier.NewModel())

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/feedback", "user-1",
		map[string]string{"text": "meralco kwh billing statement", "category": "Utilities"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	count, err := env.deps.Feedback.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, env.deps.Resolver.Model().ExampleCount())

	rec = env.jsonRequest(t, http.MethodPost, "/api/v1/feedback", "user-1",
		map[string]string{"text": "", "category": "Utilities"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.insertReceipt(t, "user-1", "text")

	rec := env.request(t, http.MethodGet, "/api/v1/stats/summary", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeJSON[repository.Summary](t, rec)
	assert.Equal(t, 1, summary.Receipts)

	rec = env.request(t, http.MethodGet, "/api/v1/stats/categories", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/stats/months?year=1900", "user-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/stats/merchants", "user-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportReceipts(t *testing.T) {
	env := newTestEnv(t)
	env.insertReceipt(t, "user-1", "text")

	rec := env.request(t, http.MethodGet, "/api/v1/export/receipts.xlsx", "user-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Disposition"), "receipts.xlsx"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestAdminRetrain(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/admin/model/retrain", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no examples yet")

	for _, pair := range [][2]string{
		{"meralco kwh billing statement", "Utilities"},
		{"burger fries combo meal", "Food"},
	} {
		rec = env.jsonRequest(t, http.MethodPost, "/api/v1/feedback", "user-1",
			map[string]string{"text": pair[0], "category": pair[1]})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec = env.jsonRequest(t, http.MethodPost, "/api/v1/admin/model/retrain", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeJSON[classifier.Report](t, rec)
	assert.Equal(t, 2, report.Examples)
	assert.FileExists(t, env.cfg.Model.Path)
	require.NotNil(t, env.deps.Resolver.Model())
	assert.Equal(t, 2, env.deps.Resolver.Model().ExampleCount())
}

func TestAdminRulesReload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(t, http.MethodPost, "/api/v1/admin/rules/reload", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/admin/jobs", "user-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
