package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/keyracer/keyracer/internal/race"
)

// WebSocketHandler upgrades client connections and routes their messages into
// the race coordinator.
type WebSocketHandler struct {
	manager *ConnectionManager
	svc     *race.Service
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(manager *ConnectionManager, svc *race.Service) *WebSocketHandler {
	return &WebSocketHandler{manager: manager, svc: svc}
}

// RegisterRoutes mounts the websocket endpoints on the mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

// HandleConnection upgrades the request and starts the connection pumps. The
// client's first message must be an authenticate envelope.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.manager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		Conn:        wsConn,
		Send:        make(chan []byte, 256),
		Manager:     h.manager,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	go conn.writePump()
	go h.readPump(conn)

	log.Info().Str("connection_id", conn.ID).Msg("WebSocket connection established")
}

// readPump consumes client messages until the socket closes, then tears the
// participant down.
func (h *WebSocketHandler) readPump(conn *Connection) {
	defer func() {
		if conn.authenticated {
			h.svc.Disconnect(conn.ID)
			h.manager.unregister(conn)
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(h.manager.config.MaxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		_, raw, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", conn.ID).Msg("unexpected WebSocket close")
			}
			return
		}
		conn.Conn.SetReadDeadline(time.Now().Add(h.manager.config.ReadTimeout))

		if err := h.dispatch(conn, raw); err != nil {
			log.Warn().Err(err).Str("connection_id", conn.ID).Msg("dropping client message")
		}
	}
}

// dispatch routes one client message. Messages referencing state the core no
// longer knows about are dropped silently inside the service.
func (h *WebSocketHandler) dispatch(conn *Connection, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed client message: %w", err)
	}

	if !conn.authenticated && msg.Type != MessageTypeAuthenticate {
		return fmt.Errorf("message %q before authenticate", msg.Type)
	}

	switch msg.Type {
	case MessageTypeAuthenticate:
		if conn.authenticated {
			return nil
		}
		var data AuthenticateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("malformed authenticate data: %w", err)
		}
		if data.Username == "" {
			return fmt.Errorf("authenticate without username")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		initEvent, raceID, err := h.svc.Authenticate(ctx, conn.ID, data.Username)
		cancel()
		if err != nil {
			return fmt.Errorf("authenticate failed: %w", err)
		}
		conn.Username = data.Username
		conn.RaceID = raceID
		conn.authenticated = true
		h.manager.register(conn)
		h.manager.sendDirect(conn, initEvent)

	case MessageTypeTyping:
		var data TypingData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("malformed typing data: %w", err)
		}
		h.svc.TypingDelta(conn.ID, data.Progress, data.CurrentWord, data.IsTyping)

	case MessageTypeRaceComplete:
		var data RaceCompleteData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("malformed raceComplete data: %w", err)
		}
		h.svc.RaceComplete(conn.ID, data.WPM, data.Accuracy)

	case MessageTypeChangeColor:
		var data ChangeColorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("malformed changeColor data: %w", err)
		}
		h.svc.ChangeColor(conn.ID, data.Color)

	default:
		log.Debug().Str("type", msg.Type).Msg("unknown client message type")
	}
	return nil
}

// HandleConnectionStats reports active connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, pools := h.manager.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_connections": total,
		"active_races":      len(pools),
		"race_connections":  pools,
	})
}
