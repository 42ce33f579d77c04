package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"go-ledger/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 256
)

// wsEvent is the frame pushed to connected clients.
type wsEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// WebSocketHub fans committed swap receipts and reward payouts out to every
// connected client. It implements services.PayoutSink; pushes are post-commit
// and best-effort, a slow client just drops frames.
type WebSocketHub struct {
	mu       sync.RWMutex
	clients  map[string]chan wsEvent
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewWebSocketHub creates a new WebSocketHub instance
func NewWebSocketHub(logger *logrus.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[string]chan wsEvent),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// PushSwap broadcasts a committed swap receipt.
func (h *WebSocketHub) PushSwap(receipt *models.SwapReceipt) {
	h.broadcast(wsEvent{Type: "swap_executed", Data: receipt, Timestamp: time.Now().Unix()})
}

// PushPayout broadcasts a committed reward payout.
func (h *WebSocketHub) PushPayout(payout *models.RewardPayout) {
	h.broadcast(wsEvent{Type: "reward_paid", Data: payout, Timestamp: time.Now().Unix()})
}

func (h *WebSocketHub) broadcast(event wsEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.WithFields(logrus.Fields{"client_id": id}).Warn("WebSocket send buffer full, dropping event")
		}
	}
}

// HandleWebSocket handles GET /api/ws
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	send := make(chan wsEvent, wsSendBuffer)

	h.mu.Lock()
	h.clients[clientID] = send
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
	}()

	h.logger.WithFields(logrus.Fields{"client_id": clientID}).Info("WebSocket client connected")
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteJSON(wsEvent{Type: "connected", Data: gin.H{"client_id": clientID}, Timestamp: time.Now().Unix()})

	// Read loop only maintains the connection: clients send nothing the hub
	// acts on, but reads are needed to process pongs and detect close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
		}
	}()

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case event := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.WithFields(logrus.Fields{
					"client_id": clientID,
					"error":     err.Error(),
				}).Warn("WebSocket write failed")
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			h.logger.WithFields(logrus.Fields{"client_id": clientID}).Info("WebSocket client disconnected")
			return
		}
	}
}
