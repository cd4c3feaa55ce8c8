// Package jobs exposes background job progress: a polling endpoint plus a
// websocket that pushes updates until the job reaches a terminal state.
package jobs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soundscribe/backend/pkg/progress"
	"github.com/soundscribe/backend/pkg/response"
)

const (
	pushInterval = time.Second
	writeWait    = 10 * time.Second
	// maxWatch bounds how long a websocket watcher is kept open.
	maxWatch = 20 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler handles job progress endpoints.
type Handler struct {
	store  *progress.Store
	logger *zap.Logger
}

// NewHandler creates a jobs handler.
func NewHandler(store *progress.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /jobs/:id/progress.
func (h *Handler) Get(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("read job progress failed", zap.Error(err), zap.String("job_id", c.Param("id")))
		response.Internal(c, "failed to read job progress")
		return
	}
	response.OK(c, rec)
}

// Watch handles GET /ws/jobs/:id: upgrades to a websocket and pushes progress
// records until the job finishes or the client disconnects.
func (h *Handler) Watch(c *gin.Context) {
	jobID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	deadline := time.Now().Add(maxWatch)
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	var last progress.Record
	for {
		rec, err := h.store.Get(ctx, jobID)
		if err != nil {
			h.logger.Warn("read job progress failed", zap.Error(err), zap.String("job_id", jobID))
			return
		}

		if rec.State != last.State || rec.Progress != last.Progress || rec.Message != last.Message {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
			last = *rec
		}
		if rec.Terminal() {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(rec.State)))
			return
		}
		if time.Now().After(deadline) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
