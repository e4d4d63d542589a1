package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/diagnostic"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/pkg/logger"
)

type DiagnosticsHandler struct {
	manager *pipeline.Manager
	store   *diagnostic.Store
}

func NewDiagnosticsHandler(manager *pipeline.Manager, store *diagnostic.Store) *DiagnosticsHandler {
	return &DiagnosticsHandler{manager: manager, store: store}
}

func (h *DiagnosticsHandler) GetDiagnostics(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if _, err := h.manager.Get(sessionID); err != nil {
		return sessionError(c, err)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	entries, err := h.store.Recent(sessionID, limit)
	if err != nil {
		logger.Error("Failed to read diagnostics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read diagnostics",
		})
	}

	count, err := h.store.Count(sessionID)
	if err != nil {
		logger.Error("Failed to count diagnostics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read diagnostics",
		})
	}

	if entries == nil {
		entries = []diagnostic.Entry{}
	}

	return c.JSON(fiber.Map{
		"total":   count,
		"entries": entries,
	})
}
