package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jixiang52002/magenta/internal/infrastructure/monitoring"
	"github.com/jixiang52002/magenta/internal/kernel/object"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is the proxy's job
	},
}

// Handler streams kernel log records to WebSocket subscribers.
type Handler struct {
	dlog    *object.DebugLog
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new log-stream handler.
func NewHandler(dlog *object.DebugLog, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dlog: dlog, logger: logger.Named("ws"), metrics: metrics}
}

// HandleConnection upgrades the request and forwards log records until
// the client goes away. Slow clients miss records rather than blocking
// kernel writers.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	sub := h.dlog.Subscribe(256)
	defer h.dlog.Unsubscribe(sub)

	// Reads only serve to detect the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(gin.H{"type": "system", "message": "kernel log stream connected"}); err != nil {
		return
	}

	for {
		select {
		case rec, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "record", "record": rec}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
