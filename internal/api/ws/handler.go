// Package ws pushes build snapshots to views over WebSocket.
package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message kinds
const (
	TypeBuild = "build"
	TypePong  = "pong"
	TypeError = "error"
)

// inbound is a message from the view
type inbound struct {
	Type string `json:"type"`
}

// Handler manages WebSocket build views
type Handler struct {
	session  *build.Session
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a handler pushing snapshots of session
func NewHandler(session *build.Session, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	return &Handler{
		session: session,
		logger:  logging.OrNop(logger),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// The control API is local; CORS middleware guards plain requests
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and streams snapshots until either
// side closes. Views may send {"type":"trigger"} to start a build and
// {"type":"ping"}.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncViewConnections("ws")
	defer h.metrics.DecViewConnections("ws")

	sub := h.session.Subscribe()
	defer sub.Close()

	// Replies from the read loop go through the writer goroutine
	replies := make(chan interface{}, 8)
	closed := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go h.readLoop(c, conn, replies, closed, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				h.writeClose(conn)
				return
			}
			if err := h.send(conn, snap.View(TypeBuild)); err != nil {
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *Handler) readLoop(c *gin.Context, conn *websocket.Conn, replies chan<- interface{}, closed chan<- struct{}, done <-chan struct{}) {
	defer close(closed)

	reply := func(v interface{}) {
		select {
		case replies <- v:
		case <-done:
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			reply(gin.H{"type": TypeError, "message": "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			reply(gin.H{"type": TypePong})
		case "trigger":
			if err := h.session.Trigger(c.Request.Context()); err != nil {
				reply(gin.H{"type": TypeError, "message": err.Error()})
			}
		default:
			reply(gin.H{"type": TypeError, "message": "unknown message type"})
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.Error(err))
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
