package race

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a room's position in the race lifecycle.
type State string

const (
	StateWaiting   State = "waiting"
	StateCountdown State = "countdown"
	StateRacing    State = "racing"
	StateFinished  State = "finished"
)

// Bracket is the skill tier a room is matched on.
type Bracket string

const (
	BracketBeginner     Bracket = "beginner"
	BracketIntermediate Bracket = "intermediate"
	BracketAdvanced     Bracket = "advanced"
	BracketExpert       Bracket = "expert"
)

// BracketFor buckets an average typing speed into a skill bracket.
func BracketFor(averageWPM float64) Bracket {
	switch {
	case averageWPM < 30:
		return BracketBeginner
	case averageWPM < 50:
		return BracketIntermediate
	case averageWPM < 70:
		return BracketAdvanced
	default:
		return BracketExpert
	}
}

// maxParticipants is the fixed room capacity.
const maxParticipants = 5

// FinishEntry is one appended finisher. Index+1 in FinishingOrder is the rank.
type FinishEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Room owns one race: its participants, passage, countdown, and finishing
// order. Every mutation happens under mu so that concurrent typing deltas,
// bot ticks, timer callbacks, and disconnects for the same room apply on a
// single logical timeline.
type Room struct {
	mu sync.Mutex

	ID                 uuid.UUID
	State              State
	Bracket            Bracket
	Passage            string
	TargetWPM          float64
	Participants       []*Participant
	FinishingOrder     []FinishEntry
	CountdownRemaining int
	StartedAt          time.Time

	// closed marks a torn-down room; any in-flight callback that finds it
	// set must no-op.
	closed bool

	// Cancellation handles for the timer-driven flows. Closed (and nilled)
	// on the state transition that invalidates them.
	backfillCancel  chan struct{}
	countdownCancel chan struct{}
	botTickCancel   chan struct{}

	// backfillStarted distinguishes the grace timer from an already-running
	// bot spawner; both park their cancel handle in backfillCancel.
	backfillStarted bool
}

// NewRoom creates a Waiting room for the given bracket and passage.
func NewRoom(bracket Bracket, passageText string, targetWPM float64) *Room {
	return &Room{
		ID:                 uuid.New(),
		State:              StateWaiting,
		Bracket:            bracket,
		Passage:            passageText,
		TargetWPM:          targetWPM,
		Participants:       make([]*Participant, 0, maxParticipants),
		CountdownRemaining: 0,
	}
}

// lowestFreeLane returns the smallest lane index not occupied by a current
// participant. Caller must hold mu.
func (r *Room) lowestFreeLane() int {
	var taken [laneCount]bool
	for _, p := range r.Participants {
		if p.Lane >= 0 && p.Lane < laneCount {
			taken[p.Lane] = true
		}
	}
	for lane := 0; lane < laneCount; lane++ {
		if !taken[lane] {
			return lane
		}
	}
	return laneCount - 1
}

// addParticipant appends a participant in join order and assigns the lowest
// free lane. Returns false when the room is full or no longer joinable.
// Caller must hold mu.
func (r *Room) addParticipant(p *Participant) bool {
	if r.closed || r.State != StateWaiting || len(r.Participants) >= maxParticipants {
		return false
	}
	p.SetLane(r.lowestFreeLane())
	p.RaceID = r.ID
	r.Participants = append(r.Participants, p)
	return true
}

// removeParticipant prunes a participant by id and reports whether it was
// present. Caller must hold mu.
func (r *Room) removeParticipant(id string) bool {
	for i, p := range r.Participants {
		if p.ID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			p.RaceID = uuid.Nil
			return true
		}
	}
	return false
}

// humanCount counts non-bot participants. Caller must hold mu.
func (r *Room) humanCount() int {
	n := 0
	for _, p := range r.Participants {
		if !p.IsBot {
			n++
		}
	}
	return n
}

// recomputeTargetWPM sets the target speed to the mean of the human
// participants' speeds. Bots never influence it; when no humans remain the
// previous value stands. Caller must hold mu.
func (r *Room) recomputeTargetWPM() {
	var sum float64
	humans := 0
	for _, p := range r.Participants {
		if !p.IsBot {
			sum += p.WPM
			humans++
		}
	}
	if humans > 0 {
		r.TargetWPM = sum / float64(humans)
	}
}

// appendFinisher records a 100% crossing and returns the 1-based rank. A
// participant is appended at most once; a duplicate returns its existing
// rank. Caller must hold mu.
func (r *Room) appendFinisher(p *Participant) int {
	for i, entry := range r.FinishingOrder {
		if entry.ID == p.ID {
			return i + 1
		}
	}
	r.FinishingOrder = append(r.FinishingOrder, FinishEntry{
		ID:       p.ID,
		Username: p.Username,
		Score:    p.Score,
	})
	return len(r.FinishingOrder)
}

// allFinished reports whether every current participant has crossed 100%.
// Caller must hold mu.
func (r *Room) allFinished() bool {
	for _, p := range r.Participants {
		if p.Progress < 100 {
			return false
		}
	}
	return true
}

// findParticipant looks a participant up by id. Caller must hold mu.
func (r *Room) findParticipant(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// snapshot copies the participant list for an init payload. The pointers are
// shared; the slice is not. Caller must hold mu.
func (r *Room) snapshot() []*Participant {
	players := make([]*Participant, len(r.Participants))
	copy(players, r.Participants)
	return players
}

// cancelBackfill stops a pending backfill flow, if any. Caller must hold mu.
func (r *Room) cancelBackfill() {
	if r.backfillCancel != nil {
		close(r.backfillCancel)
		r.backfillCancel = nil
	}
}

// cancelCountdown stops a running countdown, if any. Caller must hold mu.
func (r *Room) cancelCountdown() {
	if r.countdownCancel != nil {
		close(r.countdownCancel)
		r.countdownCancel = nil
	}
}

// cancelBotTicks stops the bot simulation loop, if any. Caller must hold mu.
func (r *Room) cancelBotTicks() {
	if r.botTickCancel != nil {
		close(r.botTickCancel)
		r.botTickCancel = nil
	}
}
