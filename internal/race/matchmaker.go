package race

import (
	"github.com/rs/zerolog/log"
)

// Matchmaker assigns incoming players to a compatible Waiting room, creating
// a fresh one when no room in the player's bracket has a seat.
type Matchmaker struct {
	registry *Registry
	selector PassageSelector
}

// NewMatchmaker creates a matchmaker over the given registry.
func NewMatchmaker(registry *Registry, selector PassageSelector) *Matchmaker {
	return &Matchmaker{registry: registry, selector: selector}
}

// JoinRoom places the participant into a room and returns it together with
// whether the join filled the last seat. The participant's WPM field must
// already carry the player's average speed.
func (m *Matchmaker) JoinRoom(p *Participant) (room *Room, full bool) {
	bracket := BracketFor(p.WPM)

	for {
		room = m.registry.FindWaiting(bracket)
		if room == nil {
			room = NewRoom(bracket, m.selector.Select(p.WPM), p.WPM)
			m.registry.Add(room)
			log.Info().
				Str("race_id", room.ID.String()).
				Str("bracket", string(bracket)).
				Int("passage_len", len(room.Passage)).
				Msg("created race room")
		}

		room.mu.Lock()
		if room.addParticipant(p) {
			room.recomputeTargetWPM()
			full = len(room.Participants) == maxParticipants
			room.mu.Unlock()
			return room, full
		}
		// The room filled or left Waiting between the scan and the join.
		room.mu.Unlock()
	}
}
