package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/keyracer/keyracer/internal/race"
)

// ConnectionManager owns the WebSocket connections and implements the
// broadcast fan-out for race events. Connections are pooled by race id; all
// deliveries flow through a single broadcast channel so events for a room
// reach clients in the order the core emitted them.
type ConnectionManager struct {
	raceConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection is one client socket. ID doubles as the participant id.
type Connection struct {
	ID       string
	Username string
	RaceID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	authenticated bool
}

// ConnectionConfig holds socket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	RaceID uuid.UUID
	Event  *race.Event
	// OnlyID, when set, restricts delivery to that participant.
	OnlyID string
	// ExceptID, when set, excludes that participant.
	ExceptID string
}

// DefaultConnectionConfig returns sane socket defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates the hub.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		raceConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1024),
	}
}

// Start pumps broadcast messages until the context ends.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// BroadcastToRace implements race.Broadcaster.
func (cm *ConnectionManager) BroadcastToRace(raceID uuid.UUID, event *race.Event) {
	cm.enqueue(broadcastMessage{RaceID: raceID, Event: event})
}

// BroadcastToOthers implements race.Broadcaster.
func (cm *ConnectionManager) BroadcastToOthers(raceID uuid.UUID, senderID string, event *race.Event) {
	cm.enqueue(broadcastMessage{RaceID: raceID, Event: event, ExceptID: senderID})
}

// BroadcastToParticipant implements race.Broadcaster.
func (cm *ConnectionManager) BroadcastToParticipant(raceID uuid.UUID, participantID string, event *race.Event) {
	cm.enqueue(broadcastMessage{RaceID: raceID, Event: event, OnlyID: participantID})
}

func (cm *ConnectionManager) enqueue(message broadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("race_id", message.RaceID.String()).
			Str("event_type", string(message.Event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// register adds an authenticated connection to its race pool.
func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.raceConnections[conn.RaceID] == nil {
		cm.raceConnections[conn.RaceID] = make(map[*Connection]bool)
	}
	cm.raceConnections[conn.RaceID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("race_id", conn.RaceID.String()).
		Int("pool_size", len(cm.raceConnections[conn.RaceID])).
		Msg("connection registered")
}

// unregister removes a connection and closes its send channel.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	pool, exists := cm.raceConnections[conn.RaceID]
	if !exists {
		return
	}
	if _, exists := pool[conn]; !exists {
		return
	}
	delete(pool, conn)
	close(conn.Send)
	if len(pool) == 0 {
		delete(cm.raceConnections, conn.RaceID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("race_id", conn.RaceID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends are non-blocking and happen under the read lock; unregister
	// closes Send under the write lock, so a send never races a close.
	var dead []*Connection
	cm.mu.RLock()
	for conn := range cm.raceConnections[message.RaceID] {
		if message.OnlyID != "" && conn.ID != message.OnlyID {
			continue
		}
		if message.ExceptID != "" && conn.ID == message.ExceptID {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			dead = append(dead, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range dead {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregister(conn)
		conn.Conn.Close()
	}
}

// sendDirect pushes an event to a single connection outside the race pools,
// used for the init snapshot before registration completes.
func (cm *ConnectionManager) sendDirect(conn *Connection, event *race.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal init event")
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("send buffer full on init")
	}
}

// Stats returns counts of active connections per race.
func (cm *ConnectionManager) Stats() (total int, racePools map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	racePools = make(map[string]int, len(cm.raceConnections))
	for raceID, pool := range cm.raceConnections {
		racePools[raceID.String()] = len(pool)
		total += len(pool)
	}
	return total, racePools
}

// writePump sends outbound messages and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}
