package race

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the envelope for everything the core pushes to clients.
type Event struct {
	ID        string          `json:"id"`
	RaceID    string          `json:"raceId"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies a race event.
type EventType string

const (
	EventTypeInit               EventType = "init"
	EventTypePlayerJoined       EventType = "playerJoined"
	EventTypePlayerLeft         EventType = "playerLeft"
	EventTypeRaceCountdown      EventType = "raceCountdown"
	EventTypeRaceStart          EventType = "raceStart"
	EventTypePlayerTyping       EventType = "playerTyping"
	EventTypePlayerColorChanged EventType = "playerColorChanged"
	EventTypeRaceFinished       EventType = "raceFinished"
	EventTypeRaceReset          EventType = "raceReset"
	EventTypeUserStatsUpdated   EventType = "userStatsUpdated"
)

// NewEvent wraps a payload into an event envelope. Marshal failures are a
// programming error on the payload type; they are logged and produce an
// event with empty data rather than breaking the room flow.
func NewEvent(raceID uuid.UUID, eventType EventType, payload interface{}) *Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		data = []byte("{}")
	}
	return &Event{
		ID:        uuid.New().String(),
		RaceID:    raceID.String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// InitPayload is the snapshot a newly joined player receives.
type InitPayload struct {
	PlayerID  string         `json:"playerId"`
	Players   []*Participant `json:"players"`
	Text      string         `json:"text"`
	RaceState State          `json:"raceState"`
}

// PlayerLeftPayload announces a departure.
type PlayerLeftPayload struct {
	ID string `json:"id"`
}

// CountdownPayload carries the seconds remaining before the start.
type CountdownPayload struct {
	Countdown int `json:"countdown"`
}

// TypingPayload is a progress update for one participant.
type TypingPayload struct {
	ID          string   `json:"id"`
	CurrentWord string   `json:"currentWord"`
	IsTyping    bool     `json:"isTyping"`
	Progress    float64  `json:"progress"`
	Position    Position `json:"position"`
}

// ColorChangedPayload announces a car color change.
type ColorChangedPayload struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// FinishedPayload announces a participant crossing the line. Position is the
// 1-based finishing rank.
type FinishedPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}
