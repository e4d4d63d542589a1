package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/pkg/logger"
)

// IngestWSHandler streams ingestion progress over a websocket. Progress
// events fire between embedding batches, which is also where a client
// disconnect cancels the run.
type IngestWSHandler struct {
	manager  *pipeline.Manager
	pipeline *pipeline.Pipeline
}

func NewIngestWSHandler(manager *pipeline.Manager, p *pipeline.Pipeline) *IngestWSHandler {
	return &IngestWSHandler{manager: manager, pipeline: p}
}

type wsEvent struct {
	Type   string                 `json:"type"`
	Done   int                    `json:"done,omitempty"`
	Total  int                    `json:"total,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Result *pipeline.IngestResult `json:"result,omitempty"`
}

func (h *IngestWSHandler) HandleConnection(c *websocket.Conn) {
	defer c.Close()

	sessionID := c.Params("id")
	s, err := h.manager.Get(sessionID)
	if err != nil {
		h.sendError(c, "Session not found")
		return
	}

	var msg struct {
		URL string `json:"url"`
	}
	if err := c.ReadJSON(&msg); err != nil {
		logger.Error("Failed to read websocket message", zap.Error(err))
		return
	}

	url := strings.TrimSpace(msg.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		h.sendError(c, "Please provide a valid URL starting with http:// or https://")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress := func(done, total int) {
		event := wsEvent{Type: "progress", Done: done, Total: total}
		if err := c.WriteJSON(event); err != nil {
			// Client went away; stop the ingestion at the next batch.
			cancel()
		}
	}

	result, err := h.pipeline.Ingest(ctx, s, []pipeline.IngestInput{{URL: url}}, progress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Ingestion cancelled by client", zap.String("session_id", sessionID))
			return
		}
		h.sendError(c, err.Error())
		return
	}

	c.WriteJSON(wsEvent{Type: "complete", Result: result})
}

func (h *IngestWSHandler) sendError(c *websocket.Conn, message string) {
	if err := c.WriteJSON(wsEvent{Type: "error", Error: message}); err != nil {
		logger.Error("Failed to send websocket error", zap.Error(err))
	}
}
