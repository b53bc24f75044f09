package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/internal/models"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

const writeWait = 10 * time.Second

// PointSource источник допущенных точек маршрута
type PointSource interface {
	Subscribe() (<-chan models.RoutePoint, func())
}

// WSMessage сообщение клиенту
type WSMessage struct {
	Type       string             `json:"type"`
	ServerTime int64              `json:"server_time"`
	Point      *models.RoutePoint `json:"point,omitempty"`
}

// WebSocketHandler поток точек записываемого маршрута в реальном времени
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	source       PointSource
	logger       *utils.Logger
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWebSocketHandler создает WebSocket handler
func NewWebSocketHandler(source PointSource, pingInterval, pongTimeout time.Duration, logger *utils.Logger) *WebSocketHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongTimeout <= pingInterval {
		pongTimeout = 2 * pingInterval
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// API слушает локальный адрес
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		source:       source,
		logger:       logger.WithField("component", "websocket"),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// wsClient одно WebSocket соединение
type wsClient struct {
	conn    *websocket.Conn
	handler *WebSocketHandler
	points  <-chan models.RoutePoint
	cancel  func()
	done    chan struct{}
}

// HandleWebSocket обрабатывает подключения к /ws/v1/points
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		metrics.WebSocketErrors.Inc()
		return
	}

	points, cancel := h.source.Subscribe()
	client := &wsClient{
		conn:    conn,
		handler: h,
		points:  points,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	h.logger.WithField("client_ip", c.ClientIP()).Info("WebSocket client connected")
	metrics.WebSocketConnections.Inc()

	go client.writePump()
	go client.readPump()
}

// readPump читает управляющие сообщения до закрытия соединения
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.cancel()
		c.conn.Close()
		metrics.WebSocketConnections.Dec()
		c.handler.logger.Debug("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.handler.pongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.handler.logger.WithError(err).Warn("WebSocket read error")
				metrics.WebSocketErrors.Inc()
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *wsClient) handleMessage(message []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Type == "pong" {
		c.handler.logger.Debug("Received pong from client")
	}
}

// writePump отправляет приветствие, точки и ping
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.handler.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if !c.write(WSMessage{Type: "welcome", ServerTime: time.Now().Unix()}) {
		return
	}

	for {
		select {
		case point, ok := <-c.points:
			if !ok {
				// движок остановлен
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "recorder stopped"))
				return
			}
			if !c.write(WSMessage{Type: "point", ServerTime: time.Now().Unix(), Point: &point}) {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.handler.logger.WithError(err).Debug("Ping write error")
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("ping").Inc()

		case <-c.done:
			return
		}
	}
}

func (c *wsClient) write(msg WSMessage) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.handler.logger.WithError(err).Warn("WebSocket write error")
		metrics.WebSocketErrors.Inc()
		return false
	}
	metrics.WebSocketMessagesOut.WithLabelValues(msg.Type).Inc()
	return true
}
