package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/pkg/logger"
)

type QuestionHandler struct {
	manager  *pipeline.Manager
	pipeline *pipeline.Pipeline
}

func NewQuestionHandler(manager *pipeline.Manager, p *pipeline.Pipeline) *QuestionHandler {
	return &QuestionHandler{manager: manager, pipeline: p}
}

func (h *QuestionHandler) AskQuestion(c *fiber.Ctx) error {
	s, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}

	var req struct {
		Question string `json:"question"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	answer, err := h.pipeline.Ask(c.Context(), s, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, budget.ErrBudgetExceeded):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Session budget exceeded. Start a new session to continue.",
			})
		case errors.Is(err, pipeline.ErrEmptyIndex):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "No documents loaded. Add a URL or upload files first.",
			})
		default:
			logger.Error("Failed to process question", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to process question. Please try again.",
			})
		}
	}

	return c.JSON(answer)
}
