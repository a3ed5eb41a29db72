package tasklog

import (
	"cloudsync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler serves the task log.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes registers the task log routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/tasks", h.HandleRecent)
}

// HandleRecent returns the newest task log entries.
// Query parameters: link (optional link ID), limit (default 100).
func (h *Handler) HandleRecent(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	limit := c.QueryInt("limit", DefaultLimit)
	if limit <= 0 || limit > 1000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 1000",
		})
	}

	entries, err := h.repo.Recent(c.UserContext(), c.Query("link"), limit)
	if err != nil {
		l.Error("Task log query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"tasks": entries})
}

// Feature implements the loader.Feature interface.
type Feature struct {
	handler *Handler
	enabled bool
}

// NewFeature creates the task log feature. It is disabled without a
// repository.
func NewFeature(repo *Repository, logger *zap.Logger) *Feature {
	return &Feature{handler: NewHandler(repo, logger), enabled: repo != nil}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "tasklog"
}

// IsEnabled reports whether a database is configured.
func (f *Feature) IsEnabled() bool {
	return f.enabled
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
