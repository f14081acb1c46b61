package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StatsFunc contributes a named section to /ws/stats.
type StatsFunc func() interface{}

// WebSocketHandler handles WebSocket upgrade requests for hub clients
type WebSocketHandler struct {
	hub   *Hub
	extra map[string]StatsFunc
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		extra: make(map[string]StatsFunc),
	}
}

// AddStats adds a section to the stats endpoint, e.g. the relay link counters.
func (h *WebSocketHandler) AddStats(name string, fn StatsFunc) {
	h.extra[name] = fn
}

// HandleConnection upgrades a client connection and hands it to the hub
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.hub.Connections().UpgradeConnection(w, r); err != nil {
		// the upgrader has already written an HTTP error
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade rejected")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Connections().GetConnectionStats()
	stats["hub"] = h.hub.Stats()
	for name, fn := range h.extra {
		stats[name] = fn()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// HandleHealth reports liveness
func (h *WebSocketHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// RegisterRoutes registers WebSocket routes with an HTTP mux. The root path
// also accepts upgrades, for clients that dial ws://host:port directly.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/", h.HandleConnection)
}
