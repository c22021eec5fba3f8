package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamdash/internal/model"
	"streamdash/internal/refresher"
)

// Hub fans out refresh results to connected dashboard clients. It is
// broadcast-only: clients receive every finished cycle for all tracked
// symbols.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// cycleMessage is the wire format pushed after each refresh cycle.
type cycleMessage struct {
	Type         string                 `json:"type"`
	Report       *refresher.CycleReport `json:"report"`
	Observations []model.Observation    `json:"observations"`
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard page may be served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[INFO] dashboard client connected (%d total)", n)

	// Drain inbound frames; the hub never expects client messages, but the
	// read loop is what detects disconnects.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastCycle pushes one finished cycle to every connected client.
func (h *Hub) BroadcastCycle(report *refresher.CycleReport, fresh []model.Observation) {
	payload, err := json.Marshal(cycleMessage{
		Type:         "cycle",
		Report:       report,
		Observations: fresh,
	})
	if err != nil {
		log.Printf("[ERROR] marshal cycle message: %v", err)
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("[WARN] websocket write, dropping client: %v", err)
			h.drop(conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
