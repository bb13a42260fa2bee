package race

import (
	"context"

	"github.com/google/uuid"
)

// Broadcaster fans race events out to connected clients. Implementations must
// not block the caller; the core may emit events while holding a room lock.
type Broadcaster interface {
	// BroadcastToRace delivers an event to every participant of a race.
	BroadcastToRace(raceID uuid.UUID, event *Event)
	// BroadcastToOthers delivers an event to every participant except the sender.
	BroadcastToOthers(raceID uuid.UUID, senderID string, event *Event)
	// BroadcastToParticipant delivers an event to a single participant.
	BroadcastToParticipant(raceID uuid.UUID, participantID string, event *Event)
}

// PassageSelector picks a passage sized for a target typing speed.
type PassageSelector interface {
	Select(targetWPM float64) string
}

// PlayerProfile is the persisted identity the core reads at connection time.
type PlayerProfile struct {
	Username   string    `json:"username"`
	Color      string    `json:"color"`
	AverageWPM float64   `json:"averageWPM"`
	HighScore  float64   `json:"highScore"`
	TotalRaces int       `json:"totalRaces"`
	Wins       int       `json:"wins"`
	WPMHistory []float64 `json:"wpmHistory"`
}

// RaceResult is what gets persisted for one human finisher.
type RaceResult struct {
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Score    int     `json:"score"`
	Rank     int     `json:"rank"`
	Win      bool    `json:"win"`
}

// StatsStore is the external stats collaborator. All calls are made off the
// room's critical path; failures degrade, they never roll back race state.
type StatsStore interface {
	GetProfile(ctx context.Context, username string) (PlayerProfile, error)
	RecordRaceResult(ctx context.Context, username string, result RaceResult) (PlayerProfile, error)
	UpdateColor(ctx context.Context, username, color string) error
}

// EventPublisher relays race events to an external message bus. Publishing is
// best-effort; errors are logged by the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NoopPublisher discards events. Used when no relay is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *Event) error { return nil }
