package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/supai/backend/internal/pipeline"
)

type SessionHandler struct {
	manager *pipeline.Manager
}

func NewSessionHandler(manager *pipeline.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	s := h.manager.Create()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": s.ID,
		"budget":     s.Ledger().Cap(),
		"created_at": s.CreatedAt,
	})
}

// DeleteSession tears the session down. Starting a fresh session is the
// only way to recover from an exceeded budget.
func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.manager.Delete(c.Params("id")); err != nil {
		return sessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Session deleted",
	})
}

func (h *SessionHandler) GetCost(c *fiber.Ctx) error {
	s, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}

	ledger := s.Ledger()
	return c.JSON(fiber.Map{
		"total":    ledger.Total(),
		"cap":      ledger.Cap(),
		"exceeded": ledger.Exceeded(),
	})
}

func sessionError(c *fiber.Ctx, err error) error {
	if errors.Is(err, pipeline.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal error",
	})
}
