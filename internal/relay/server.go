package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay trusts its deployment perimeter, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves the relay's HTTP surface: the websocket endpoint, a
// health probe, and the counter snapshot.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/telemetry", h.handleTelemetry)
	return mux
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("upgrade failed: %v", err)
		return
	}
	peerID := h.Join(r.URL.Query().Get("peer"), conn)
	go h.ReadLoop(context.Background(), peerID, conn)
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Hub) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats()); err != nil {
		h.logf("encode telemetry: %v", err)
	}
}
