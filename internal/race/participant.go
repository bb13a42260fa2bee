package race

import (
	"time"

	"github.com/google/uuid"
)

// Position is a participant's spot on the track. X is fixed by the lane,
// Z advances with progress. Purely presentational.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// laneOffsets spreads the five lanes across the track.
var laneOffsets = [5]float64{-6, -3, 0, 3, 6}

const (
	trackStartZ = -50
	laneCount   = 5
)

// Participant is one racer in a room, human or bot.
type Participant struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	IsBot    bool     `json:"isBot"`
	Lane     int      `json:"lane"`
	Color    string   `json:"color"`
	Position Position `json:"position"`

	Progress    float64 `json:"progress"`
	CurrentWord string  `json:"currentWord"`
	IsTyping    bool    `json:"isTyping"`
	Score       int     `json:"score"`
	Finished    bool    `json:"finished"`

	// WPM carries the player's average speed at join time; for bots it is
	// the simulated typing speed.
	WPM       float64 `json:"wpm"`
	ErrorRate float64 `json:"errorRate,omitempty"`

	RaceID uuid.UUID `json:"raceId"`

	// Bot simulation state, touched only under the owning room's lock.
	typedChars    float64
	stalledUntil  time.Time
	statsRecorded bool
}

// SetLane assigns a lane and moves the participant to its start position.
func (p *Participant) SetLane(lane int) {
	p.Lane = lane
	p.Position = Position{X: laneOffsets[lane%laneCount], Y: 0.5, Z: trackStartZ}
}

// advance moves the participant's track position in step with progress.
func (p *Participant) advance() {
	p.Position.Z = trackStartZ + p.Progress
}
