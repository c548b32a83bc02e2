package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// ClientMsg é o que o cliente pode mandar; hoje só "ping"
type ClientMsg struct {
	Type string `json:"type"`
}

// client serializa as escritas: o gorilla/websocket não aceita escritores concorrentes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub mantém as conexões do feed de rodadas e repassa cada broadcast a todas
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		clients:  make(map[*client]struct{}),
	}
}

// Count devolve quantas conexões estão abertas
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer h.drop(c)

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			if err := c.write([]byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Broadcast envia o estado da rodada para todos os clientes conectados.
// Cliente que falha na escrita é desconectado.
func (h *Hub) Broadcast(msg cevents.RoundBroadcast) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws marshal broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed, dropping client", zap.Error(err))
			h.drop(c)
		}
	}
}

// Relay decodifica um payload do pub/sub e faz o broadcast
func (h *Hub) Relay(payload string) error {
	var msg cevents.RoundBroadcast
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fmt.Errorf("decode round broadcast: %w", err)
	}
	h.Broadcast(msg)
	return nil
}
