package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	xlogger "SignalGuard/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 32
)

type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// RiskHub pushes risk events to websocket subscribers. New subscribers get the current
// status first. A subscriber that cannot keep up is disconnected rather than slowing the rest.
type RiskHub struct {
	logger   *xlogger.Logger
	snapshot func() interface{}
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewRiskHub(logger *xlogger.Logger, snapshot func() interface{}) *RiskHub {
	return &RiskHub{
		logger:   logger,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// SetSnapshot sets what new subscribers receive first. Call before serving.
func (h *RiskHub) SetSnapshot(fn func() interface{}) {
	h.snapshot = fn
}

func (h *RiskHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/risk", h.Serve)
}

func (h *RiskHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	if h.snapshot != nil {
		if b, err := json.Marshal(wsEnvelope{Type: "status", Data: h.snapshot()}); err == nil {
			cl.send <- b
		}
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("risk subscriber connected", xlogger.String("remote", c.RealIP()), xlogger.Int("subscribers", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

func (h *RiskHub) readPump(cl *wsClient) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *RiskHub) writePump(cl *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RiskHub) remove(cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// PublishRiskEvent broadcasts the event to every subscriber.
func (h *RiskHub) PublishRiskEvent(_ context.Context, evt models.RiskEvent) error {
	b, err := json.Marshal(wsEnvelope{Type: "risk_event", Data: evt})
	if err != nil {
		return err
	}
	var slow []*wsClient
	h.mu.RLock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.Warn("dropping slow risk subscriber")
		h.remove(cl)
	}
	return nil
}

func (h *RiskHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *RiskHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

var _ domrepo.RiskEventPublisher = (*RiskHub)(nil)
