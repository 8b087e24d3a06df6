package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aescanero/taskdag/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections.
type Handler struct {
	eventBus ports.EventBus
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(eventBus ports.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		logger:   logger,
	}
}

// HandleEventStream upgrades the connection and streams task events to the
// client until it disconnects. An optional task_id query parameter filters
// the stream to a single task.
func (h *Handler) HandleEventStream(c *gin.Context) {
	taskFilter := c.Query("task_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("task_filter", taskFilter),
		zap.String("client", c.ClientIP()))

	eventChan := make(chan ports.Event, 10)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := h.subscribe(ctx, eventChan); err != nil {
		h.logger.Error("failed to subscribe to events", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			if taskFilter != "" && event.TaskID != taskFilter {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Info("WebSocket client disconnected", zap.Error(err))
				return
			}
		}
	}
}

// subscribe registers a bus handler that forwards events to the connection's
// channel without blocking the publisher.
func (h *Handler) subscribe(ctx context.Context, ch chan<- ports.Event) error {
	handler := func(ctx context.Context, event ports.Event) error {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Channel full, skip event.
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("task_id", event.TaskID))
		}
		return nil
	}

	return h.eventBus.Subscribe(ctx, "task.events", handler)
}
