package query

import (
	"errors"

	"cloudsync/core/logger"
	"cloudsync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for link queries.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the query routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/queue", h.HandleQueue)

	group := app.Group("/links")
	group.Get("/", h.HandleListLinks)
	group.Get("/:id/nodes", h.HandleNodes)
	group.Get("/:id/query", h.HandleQuery)
	group.Get("/:id/storage-path", h.HandleStoragePath)
	group.Get("/:id/share", h.HandleShare)
}

// HandleListLinks returns every link and its engine state.
func (h *Handler) HandleListLinks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"links": h.service.ListLinks()})
}

// HandleQueue returns the number of pending and running tasks.
func (h *Handler) HandleQueue(c *fiber.Ctx) error {
	return c.JSON(h.service.QueueStats())
}

// HandleNodes returns every node of a link in pre-order.
func (h *Handler) HandleNodes(c *fiber.Ctx) error {
	nodes, err := h.service.Nodes(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"nodes": nodes})
}

// HandleQuery returns the node at the path given by the path parameter.
func (h *Handler) HandleQuery(c *fiber.Ctx) error {
	view, err := h.service.Node(c.UserContext(), c.Params("id"), c.Query("path"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(view)
}

// HandleStoragePath returns where an item lives on each remote storage.
func (h *Handler) HandleStoragePath(c *fiber.Ctx) error {
	paths, err := h.service.StoragePath(c.UserContext(), c.Params("id"), c.Query("path"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"paths": paths})
}

// HandleShare returns the share state of an item.
func (h *Handler) HandleShare(c *fiber.Ctx) error {
	st, err := h.service.Share(c.UserContext(), c.Params("id"), c.Query("path"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(st)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrLinkNotFound), errors.Is(err, reconcile.ErrNodeNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, reconcile.ErrStopped):
		status = fiber.StatusServiceUnavailable
	default:
		logger.WithRayID(h.service.logger, c).Error("Query failed", zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
