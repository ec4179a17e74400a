// Package server exposes the HTTP surface: uploads, job polling, receipt
// reads and corrections, labels, feedback, stats, exports, and a small
// admin area.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/resibo-ph/resibo/internal/classifier"
	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/export"
	"github.com/resibo-ph/resibo/internal/repository"
	"github.com/resibo-ph/resibo/internal/rules"
)

// Waker is the worker pool's enqueue notification.
type Waker interface {
	Wake()
}

// Deps bundles everything the handlers need.
type Deps struct {
	Jobs     repository.JobRepository
	Receipts repository.ReceiptRepository
	Labels   repository.LabelRepository
	Feedback repository.FeedbackRepository
	Pool     Waker
	Rules    *rules.Store
	Resolver *classifier.Resolver
	Export   *export.Service
}

// Server wires the echo instance, configuration, and dependencies.
type Server struct {
	echo   *echo.Echo
	cfg    *common.Config
	deps   Deps
	auth   *Authenticator
	logger *slog.Logger
}

func NewServer(cfg *common.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		auth:   NewAuthenticator(cfg.Auth, logger),
		logger: logger,
	}

	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			)
			return nil
		},
	}))
	if cfg.Server.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.Server.MaxUploadBytes)))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api/v1", s.auth.Middleware())
	api.GET("/categories", s.listCategories)
	api.POST("/receipts", s.uploadReceipt)
	api.GET("/receipts", s.listReceipts)
	api.GET("/receipts/low-confidence", s.lowConfidenceReceipts)
	api.GET("/receipts/:id", s.getReceipt)
	api.PATCH("/receipts/:id", s.correctReceipt)

	api.GET("/jobs/:id", s.getJob)

	api.POST("/feedback", s.postFeedback)

	api.GET("/labels", s.listLabels)
	api.POST("/labels", s.createLabel)
	api.GET("/labels/:id", s.getLabel)
	api.PATCH("/labels/:id", s.updateLabel)
	api.DELETE("/labels/:id", s.deleteLabel)

	api.GET("/stats/summary", s.statsSummary)
	api.GET("/stats/categories", s.statsByCategory)
	api.GET("/stats/months", s.statsByMonth)
	api.GET("/stats/merchants", s.topMerchants)

	api.GET("/export/receipts.xlsx", s.exportReceipts)

	admin := api.Group("/admin")
	admin.GET("/jobs", s.jobCounts)
	admin.POST("/rules/reload", s.reloadRules)
	admin.POST("/model/retrain", s.retrainModel)
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Server.Addr)
	if err := s.echo.Start(s.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	modelLoaded := s.deps.Resolver != nil && s.deps.Resolver.Model() != nil
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": modelLoaded,
	})
}

// errorHandler maps application errors onto JSON error bodies.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"

	var httpErr *echo.HTTPError
	var appErr *common.AppError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		message = fmt.Sprintf("%v", httpErr.Message)
	case errors.As(err, &appErr):
		status = common.HTTPStatusFor(appErr)
		message = appErr.Message
	default:
		s.logger.Error("unhandled request error", "error", err)
	}

	if writeErr := c.JSON(status, map[string]string{"error": message}); writeErr != nil {
		s.logger.Error("error response write failed", "error", writeErr)
	}
}

// currentUser returns the subject resolved by the auth middleware.
func currentUser(c echo.Context) string {
	if id, ok := c.Get(userContextKey).(string); ok {
		return id
	}
	return ""
}
