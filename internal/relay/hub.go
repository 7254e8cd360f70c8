// Package relay is the broadcast fabric between stage clients: a dumb
// websocket fan-out that stamps sender ids and forwards every envelope to
// every other peer. It never interprets scene semantics; the clients do.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"footlights/stage/internal/proto"
	"footlights/stage/internal/telemetry"
	"footlights/stage/logging"
)

const writeWait = 10 * time.Second

// Hub owns all live peer connections.
type Hub struct {
	mu    sync.Mutex
	peers map[string]*peer

	logger telemetry.Logger
	pub    logging.Publisher

	envelopesIn  atomic.Uint64
	envelopesOut atomic.Uint64
	dropped      atomic.Uint64
}

type peer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewHub(logger telemetry.Logger, pub logging.Publisher) *Hub {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Hub{
		peers:  make(map[string]*peer),
		logger: logger,
		pub:    pub,
	}
}

// Join registers a connection under peerID, generating an id for anonymous
// peers. A reconnect under the same id closes the stale connection.
func (h *Hub) Join(peerID string, conn *websocket.Conn) string {
	if peerID == "" {
		peerID = uuid.NewString()
	}
	h.mu.Lock()
	if existing, ok := h.peers[peerID]; ok {
		existing.conn.Close()
	}
	h.peers[peerID] = &peer{id: peerID, conn: conn}
	count := len(h.peers)
	h.mu.Unlock()

	h.logf("peer %s joined (%d connected)", peerID, count)
	return peerID
}

// Leave removes a peer and closes its connection.
func (h *Hub) Leave(peerID string) {
	h.evict(peerID, nil)
}

// evict removes peerID. When conn is non-nil the entry only goes away if it
// still holds that connection: a replaced connection's read loop must not
// tear down the reconnect that displaced it.
func (h *Hub) evict(peerID string, conn *websocket.Conn) {
	h.mu.Lock()
	p, ok := h.peers[peerID]
	if ok && conn != nil && p.conn != conn {
		ok = false
	}
	if ok {
		delete(h.peers, peerID)
	}
	count := len(h.peers)
	h.mu.Unlock()

	if ok {
		p.conn.Close()
		h.logf("peer %s left (%d connected)", peerID, count)
	}
}

// PeerCount reports how many peers are connected.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Forward stamps the sender id onto the envelope and fans it out to every
// peer except the sender. Peers whose write fails are disconnected.
func (h *Hub) Forward(senderID string, raw []byte) {
	h.envelopesIn.Add(1)

	var env proto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.dropped.Add(1)
		h.logf("drop malformed envelope from %s: %v", senderID, err)
		return
	}
	env.SenderID = senderID
	data, err := json.Marshal(env)
	if err != nil {
		h.dropped.Add(1)
		h.logf("re-encode envelope from %s: %v", senderID, err)
		return
	}

	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id == senderID {
			continue
		}
		targets = append(targets, p)
	}
	h.mu.Unlock()

	for _, p := range targets {
		p.mu.Lock()
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := p.conn.WriteMessage(websocket.TextMessage, data)
		p.mu.Unlock()
		if err != nil {
			h.logf("failed to send to %s: %v", p.id, err)
			h.evict(p.id, p.conn)
			continue
		}
		h.envelopesOut.Add(1)
	}
}

// ReadLoop pumps one peer's envelopes into the hub until the connection
// drops.
func (h *Hub) ReadLoop(ctx context.Context, peerID string, conn *websocket.Conn) {
	defer h.evict(peerID, conn)
	for {
		if ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.Forward(peerID, raw)
	}
}

// Stats is the hub's counter snapshot, served on the telemetry endpoint.
type Stats struct {
	Peers        int    `json:"peers"`
	EnvelopesIn  uint64 `json:"envelopesIn"`
	EnvelopesOut uint64 `json:"envelopesOut"`
	Dropped      uint64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Peers:        h.PeerCount(),
		EnvelopesIn:  h.envelopesIn.Load(),
		EnvelopesOut: h.envelopesOut.Load(),
		Dropped:      h.dropped.Load(),
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
