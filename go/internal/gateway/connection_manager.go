package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// InboundFunc receives every frame read from a client connection.
type InboundFunc func(connID string, data []byte)

// ConnectionManager is the registry of live client connections, keyed by
// connection id. Broadcasts iterate over a snapshot, so connections may come
// and go while a broadcast is in flight.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config  ConnectionConfig
	inbound InboundFunc
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	ConnectedAt time.Time

	mu      sync.Mutex
	closed  bool
	manager *ConnectionManager
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // telemetry batches carry every lane
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// displays and control panels are served from other hosts on the LAN
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, inbound InboundFunc) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		inbound: inbound,
	}
}

// NewConnection creates an unregistered connection. conn may be nil when the
// caller drains Send itself.
func (cm *ConnectionManager) NewConnection(conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		ConnectedAt: time.Now(),
		manager:     cm,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket, acknowledges it
// and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.NewConnection(conn)
	cm.Register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
	return nil
}

// Register queues the connected acknowledgment and then adds the connection,
// so the ack is always the first frame a client receives.
func (cm *ConnectionManager) Register(conn *Connection) {
	ack, _ := json.Marshal(Message{Type: TypeConnected, ConnectionID: conn.ID})
	conn.enqueue(ack)

	cm.mu.Lock()
	cm.connections[conn.ID] = conn
	total := len(cm.connections)
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// Unregister removes a connection and closes its send channel. Safe to call twice.
func (cm *ConnectionManager) Unregister(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		delete(cm.connections, conn.ID)
	}
	cm.mu.Unlock()

	conn.close()
	if exists {
		log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
	}
}

// SendTo queues data for one connection. It reports false when the
// connection is gone or had to be dropped.
func (cm *ConnectionManager) SendTo(connID string, data []byte) bool {
	cm.mu.RLock()
	conn, ok := cm.connections[connID]
	cm.mu.RUnlock()
	if !ok {
		return false
	}
	return cm.deliver(conn, data)
}

// Broadcast queues data for every connection except excludeID and returns
// how many connections received it.
func (cm *ConnectionManager) Broadcast(excludeID string, data []byte) int {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for id, conn := range cm.connections {
		if id == excludeID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if cm.deliver(conn, data) {
			delivered++
		}
	}
	return delivered
}

func (cm *ConnectionManager) deliver(conn *Connection, data []byte) bool {
	if conn.enqueue(data) {
		return true
	}
	// Connection is slow or dead, close it
	log.Warn().
		Str("connection_id", conn.ID).
		Msg("connection send buffer full, closing connection")
	cm.Unregister(conn)
	if conn.Conn != nil {
		conn.Conn.Close()
	}
	return false
}

// Count returns the number of live connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll unregisters every connection; write pumps then send a close frame.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.Unregister(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	oldest := time.Time{}
	for _, conn := range cm.connections {
		if oldest.IsZero() || conn.ConnectedAt.Before(oldest) {
			oldest = conn.ConnectedAt
		}
	}

	stats := map[string]interface{}{
		"total_connections": len(cm.connections),
	}
	if !oldest.IsZero() {
		stats["oldest_connection_at"] = oldest.UTC()
	}
	return stats
}

// enqueue queues data without blocking. It reports false when the
// connection is closed or its buffer is full.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.manager.Unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client frames and hands them to the hub
func (c *Connection) readPump() {
	cfg := c.manager.config
	defer func() {
		c.manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		if c.manager.inbound != nil {
			c.manager.inbound(c.ID, message)
		}
	}
}
