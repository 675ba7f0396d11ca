package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/dispatch"
	"github.com/andyk/termmux/internal/hub"
)

const (
	// writeWait bounds a single outbound frame write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for the peer's next pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds one inbound command frame.
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// AttachHandler upgrades HTTP connections to WebSocket clients speaking the
// same command/observation protocol as the TCP socket: one command per text
// frame in, one observation per text frame out.
type AttachHandler struct {
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewAttachHandler creates an AttachHandler.
func NewAttachHandler(h *hub.Hub, d *dispatch.Dispatcher, logger *zap.Logger) *AttachHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachHandler{hub: h, dispatcher: d, logger: logger}
}

// Attach handles GET /api/attach.
func (h *AttachHandler) Attach(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(&wsConn{conn: conn})
	h.hub.Register(client)
	h.logger.Info("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.pingLoop(conn)
	go h.readLoop(conn, client)
}

// readLoop feeds inbound frames to the dispatcher until the peer disconnects.
func (h *AttachHandler) readLoop(conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
		h.logger.Info("websocket client disconnected", zap.String("remote", conn.RemoteAddr().String()))
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		h.dispatcher.HandleMessage(client, message)
	}
}

// pingLoop keeps the connection alive. WriteControl is safe to call
// concurrently with the hub's delivery pump.
func (h *AttachHandler) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		deadline := time.Now().Add(writeWait)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

// RegisterRoutes registers the attach route on a Gin router group.
func (h *AttachHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/attach", h.Attach)
}

// wsConn adapts a WebSocket connection to the hub's transport interface.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}
