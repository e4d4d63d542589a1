package handlers

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/pkg/logger"
)

type DocumentHandler struct {
	manager  *pipeline.Manager
	pipeline *pipeline.Pipeline
}

func NewDocumentHandler(manager *pipeline.Manager, p *pipeline.Pipeline) *DocumentHandler {
	return &DocumentHandler{manager: manager, pipeline: p}
}

// AddDocuments ingests either a URL (JSON body) or uploaded files
// (multipart form, field "files"). Per-document failures are reported in
// the result, not as a request failure, as long as at least one document
// produced chunks.
func (h *DocumentHandler) AddDocuments(c *fiber.Ctx) error {
	s, err := h.manager.Get(c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}

	inputs, err := h.parseInputs(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	result, err := h.pipeline.Ingest(c.Context(), s, inputs, nil)
	if err != nil {
		switch {
		case errors.Is(err, budget.ErrBudgetExceeded):
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Session budget exceeded. Start a new session to continue.",
			})
		case errors.Is(err, pipeline.ErrTooManySources):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, pipeline.ErrNoChunks):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Could not extract enough text to create chunks.",
				"result": result,
			})
		default:
			logger.Error("Failed to ingest documents", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to process documents. Please try again.",
			})
		}
	}

	return c.JSON(result)
}

func (h *DocumentHandler) parseInputs(c *fiber.Ctx) ([]pipeline.IngestInput, error) {
	if strings.Contains(c.Get("Content-Type"), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, errors.New("invalid multipart form")
		}

		files := form.File["files"]
		if len(files) == 0 {
			return nil, errors.New("no files provided")
		}

		var inputs []pipeline.IngestInput
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				return nil, errors.New("could not read uploaded file " + fh.Filename)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, errors.New("could not read uploaded file " + fh.Filename)
			}
			inputs = append(inputs, pipeline.IngestInput{Name: fh.Filename, Data: data})
		}
		return inputs, nil
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.New("invalid request body")
	}

	url := strings.TrimSpace(req.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, errors.New("please provide a valid URL starting with http:// or https://")
	}

	return []pipeline.IngestInput{{URL: url}}, nil
}
