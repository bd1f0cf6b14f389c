package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type WSOut struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(msg WSOut) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

// Hub tracks live sessions per player. A player can hold several tabs;
// sends fan out to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*wsClient]struct{})}
}

func (h *Hub) add(playerID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[playerID] == nil {
		h.clients[playerID] = make(map[*wsClient]struct{})
	}
	h.clients[playerID][c] = struct{}{}
}

func (h *Hub) remove(playerID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[playerID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, playerID)
		}
	}
}

// Send delivers to one player's sessions, best-effort. Returns whether
// at least one session took the message.
func (h *Hub) Send(playerID string, msg WSOut) bool {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[playerID]))
	for c := range h.clients[playerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if err := c.send(msg); err == nil {
			delivered = true
		}
	}
	return delivered
}

func (h *Hub) Broadcast(msg WSOut) {
	h.mu.RLock()
	targets := make([]*wsClient, 0)
	for _, conns := range h.clients {
		for c := range conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		_ = c.send(msg)
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func wsHandler(hub *Hub, house *AuctionHouse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("playerId")
		if !isValidPlayerID(playerID) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("ws upgrade:", err)
			return
		}

		client := &wsClient{conn: conn}
		hub.add(playerID, client)
		defer func() {
			hub.remove(playerID, client)
			_ = conn.Close()
		}()

		_ = client.send(WSOut{Type: "auction_state", Payload: house.Snapshot()})

		// Clients only listen; the read loop exists to notice the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// startAuctionBroadcast pushes the live countdown to every session once
// a second, mirroring what the settlement ticker sees.
func startAuctionBroadcast(hub *Hub, house *AuctionHouse) {
	ticker := time.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for range ticker.C {
			hub.Broadcast(WSOut{Type: "auction_state", Payload: house.Snapshot()})
		}
	}()
}
