// Package observe exposes gateway traffic to attached inspectors over a
// WebSocket fan-out. Purely diagnostic: translation never depends on it and
// a nil *Hub disables everything.
package observe

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const historyCap = 100

// PacketInfo is one captured traffic record.
type PacketInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Size      int       `json:"size"`
	Preview   string    `json:"preview"`
}

type wsMessage struct {
	Event  string      `json:"event"`
	Packet *PacketInfo `json:"packet,omitempty"`
}

// Hub fans captured packets out to websocket subscribers and keeps a short
// in-memory history for late joiners.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]bool
	history []PacketInfo
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

// HandleWS upgrades the connection, replays recent history, and holds the
// connection open until the peer goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.conns[conn] = true
	recent := append([]PacketInfo(nil), h.history...)
	n := len(h.conns)
	h.mu.Unlock()
	log.Info().Int("connections", n).Msg("inspector attached")

	_ = conn.WriteJSON(wsMessage{Event: "connected"})
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for i := range recent {
		_ = conn.WriteJSON(wsMessage{Event: "packet_history", Packet: &recent[i]})
	}

	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()
	_ = conn.Close()
	log.Info().Int("connections", n).Msg("inspector detached")
}

// LogPacket records a traffic event and broadcasts it. Nil receivers are a
// no-op so call sites need no guards.
func (h *Hub) LogPacket(packetType, preview string, size int) {
	if h == nil {
		return
	}
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	info := PacketInfo{
		Timestamp: time.Now(),
		Type:      packetType,
		Size:      size,
		Preview:   preview,
	}
	h.mu.Lock()
	h.history = append(h.history, info)
	if len(h.history) > historyCap {
		h.history = h.history[len(h.history)-historyCap:]
	}
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	msg := wsMessage{Event: "packet_captured", Packet: &info}
	for _, c := range conns {
		if err := c.WriteJSON(msg); err != nil {
			h.drop(c)
		}
	}
}

// History returns up to limit most recent records, newest last.
func (h *Hub) History(limit int) []PacketInfo {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.history
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]PacketInfo(nil), out...)
}
