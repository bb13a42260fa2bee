package race

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config tunes the service's timer-driven flows.
type Config struct {
	// BackfillDelay is how long a room waits for more humans before bots
	// start filling the empty seats.
	BackfillDelay time.Duration
	// BotSpawnInterval is the gap between consecutive backfill bots.
	BotSpawnInterval time.Duration
	// CountdownSeconds is the pre-race countdown length.
	CountdownSeconds int
	// StatsTimeout bounds a single stats persistence call.
	StatsTimeout time.Duration
	// DefaultAverageWPM stands in when a profile lookup fails.
	DefaultAverageWPM float64
	// DefaultColor stands in when a profile lookup fails.
	DefaultColor string
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		BackfillDelay:     3 * time.Second,
		BotSpawnInterval:  2 * time.Second,
		CountdownSeconds:  3,
		StatsTimeout:      5 * time.Second,
		DefaultAverageWPM: 40,
		DefaultColor:      "#FF6B6B",
	}
}

// Service is the race-room lifecycle and matchmaking coordinator. It owns the
// room registry and the process-wide participant map and serializes every
// mutation of a room's state through that room's lock.
type Service struct {
	registry   *Registry
	matchmaker *Matchmaker

	pmu          sync.RWMutex
	participants map[string]*Participant

	broadcaster Broadcaster
	stats       StatsStore
	publisher   EventPublisher
	clock       clockwork.Clock
	cfg         Config

	// spawn runs fire-and-forget work. Swapped for a synchronous runner in
	// tests.
	spawn func(func())
}

// NewService wires the coordinator. A nil publisher disables the relay.
func NewService(selector PassageSelector, broadcaster Broadcaster, stats StatsStore, publisher EventPublisher, clock clockwork.Clock, cfg Config) *Service {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	registry := NewRegistry()
	return &Service{
		registry:     registry,
		matchmaker:   NewMatchmaker(registry, selector),
		participants: make(map[string]*Participant),
		broadcaster:  broadcaster,
		stats:        stats,
		publisher:    publisher,
		clock:        clock,
		cfg:          cfg,
		spawn:        func(fn func()) { go fn() },
	}
}

// Registry exposes the room registry for stats endpoints and tests.
func (s *Service) Registry() *Registry { return s.registry }

// Authenticate loads the player's profile, matchmakes them into a room, and
// returns the init snapshot the connection layer delivers to that player.
// Profile lookup failure degrades to a default profile; it never blocks entry.
func (s *Service) Authenticate(ctx context.Context, connID, username string) (*Event, uuid.UUID, error) {
	profile, err := s.stats.GetProfile(ctx, username)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("profile lookup failed, using defaults")
		profile = PlayerProfile{
			Username:   username,
			Color:      s.cfg.DefaultColor,
			AverageWPM: s.cfg.DefaultAverageWPM,
		}
	}
	if profile.AverageWPM <= 0 {
		profile.AverageWPM = s.cfg.DefaultAverageWPM
	}

	player := &Participant{
		ID:       connID,
		Username: username,
		Color:    profile.Color,
		WPM:      profile.AverageWPM,
	}

	s.pmu.Lock()
	s.participants[connID] = player
	s.pmu.Unlock()

	room, full := s.matchmaker.JoinRoom(player)

	room.mu.Lock()
	initEvent := NewEvent(room.ID, EventTypeInit, InitPayload{
		PlayerID:  player.ID,
		Players:   room.snapshot(),
		Text:      room.Passage,
		RaceState: room.State,
	})
	s.broadcaster.BroadcastToOthers(room.ID, player.ID, NewEvent(room.ID, EventTypePlayerJoined, player))

	switch {
	case full:
		s.startCountdownLocked(room)
	case room.humanCount() >= 2 && room.backfillCancel != nil && !room.backfillStarted:
		// A second human arrived before the grace timer fired; stop
		// waiting and backfill immediately.
		room.cancelBackfill()
		s.startBotSpawner(room)
	case room.backfillCancel == nil && room.State == StateWaiting:
		s.scheduleBackfillLocked(room)
	}
	room.mu.Unlock()

	log.Info().
		Str("participant_id", connID).
		Str("username", username).
		Str("race_id", room.ID.String()).
		Str("bracket", string(room.Bracket)).
		Msg("player joined race")

	return initEvent, room.ID, nil
}

// TypingDelta applies a human progress update. Updates that would decrease
// progress are ignored to keep progress monotonic; crossing 100% is terminal
// and routes through the finish path.
func (s *Service) TypingDelta(connID string, progress float64, currentWord string, isTyping bool) {
	player, room := s.lookup(connID)
	if player == nil || room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateRacing || player.Finished {
		return
	}
	if progress < player.Progress {
		return
	}
	if progress > 100 {
		progress = 100
	}

	player.Progress = progress
	player.CurrentWord = currentWord
	player.IsTyping = isTyping
	player.advance()

	s.broadcaster.BroadcastToOthers(room.ID, player.ID, NewEvent(room.ID, EventTypePlayerTyping, TypingPayload{
		ID:          player.ID,
		CurrentWord: currentWord,
		IsTyping:    isTyping,
		Progress:    player.Progress,
		Position:    player.Position,
	}))

	if player.Progress >= 100 {
		s.finishParticipantLocked(room, player)
	}
}

// RaceComplete finalizes a human finisher: marks 100% if the typing stream
// has not already, and persists the result exactly once. The persisted
// profile is relayed back to that participant only.
func (s *Service) RaceComplete(connID string, wpm, accuracy float64) {
	player, room := s.lookup(connID)
	if player == nil || room == nil || player.IsBot {
		return
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return
	}

	if !player.Finished {
		player.Progress = 100
		player.advance()
		s.finishParticipantLocked(room, player)
	}
	if player.statsRecorded {
		room.mu.Unlock()
		return
	}
	player.statsRecorded = true

	rank := 0
	for i, entry := range room.FinishingOrder {
		if entry.ID == player.ID {
			rank = i + 1
			break
		}
	}
	result := RaceResult{
		WPM:      wpm,
		Accuracy: accuracy,
		Score:    player.Score,
		Rank:     rank,
		Win:      rank == 1,
	}
	raceID := room.ID
	username := player.Username
	room.mu.Unlock()

	s.spawn(func() { s.recordStats(raceID, connID, username, result) })
}

// ChangeColor updates the participant's color, broadcasts it to the room, and
// persists it best-effort. Not state-machine-relevant.
func (s *Service) ChangeColor(connID, color string) {
	player, room := s.lookup(connID)
	if player == nil {
		return
	}

	username := player.Username
	if room != nil {
		room.mu.Lock()
		player.Color = color
		s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypePlayerColorChanged, ColorChangedPayload{
			ID:    player.ID,
			Color: color,
		}))
		room.mu.Unlock()
	} else {
		player.Color = color
	}

	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatsTimeout)
		defer cancel()
		if err := s.stats.UpdateColor(ctx, username, color); err != nil {
			log.Error().Err(err).Str("username", username).Msg("failed to persist color change")
		}
	})
}

// Disconnect removes a participant from its room and the participant map.
// When the last human leaves, the room is force-reset regardless of state.
func (s *Service) Disconnect(connID string) {
	player, room := s.lookup(connID)

	s.pmu.Lock()
	delete(s.participants, connID)
	s.pmu.Unlock()

	if player == nil || room == nil {
		return
	}

	room.mu.Lock()
	if room.closed || !room.removeParticipant(connID) {
		room.mu.Unlock()
		return
	}
	s.broadcaster.BroadcastToOthers(room.ID, connID, NewEvent(room.ID, EventTypePlayerLeft, PlayerLeftPayload{ID: connID}))
	humansLeft := room.humanCount()
	room.mu.Unlock()

	log.Info().
		Str("participant_id", connID).
		Str("race_id", room.ID.String()).
		Int("humans_left", humansLeft).
		Msg("player disconnected")

	if humansLeft == 0 {
		s.ResetRoom(room.ID)
	}
}

// ResetRoom tears a room down: cancels pending timers, removes its bots from
// the participant map, deletes it from the registry, and broadcasts a reset
// notice. In-flight callbacks against the room become no-ops.
func (s *Service) ResetRoom(raceID uuid.UUID) {
	room, ok := s.registry.Get(raceID)
	if !ok {
		return
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return
	}
	room.closed = true
	room.cancelBackfill()
	room.cancelCountdown()
	room.cancelBotTicks()

	var botIDs []string
	for _, p := range room.Participants {
		if p.IsBot {
			botIDs = append(botIDs, p.ID)
		}
	}
	resetEvent := NewEvent(room.ID, EventTypeRaceReset, struct{}{})
	s.broadcaster.BroadcastToRace(room.ID, resetEvent)
	room.mu.Unlock()

	s.pmu.Lock()
	for _, id := range botIDs {
		delete(s.participants, id)
	}
	s.pmu.Unlock()

	s.registry.Remove(raceID)
	s.publishEvent(resetEvent)

	log.Info().Str("race_id", raceID.String()).Msg("race reset")
}

// lookup resolves a connection id to its participant and owning room.
func (s *Service) lookup(connID string) (*Participant, *Room) {
	s.pmu.RLock()
	player, ok := s.participants[connID]
	s.pmu.RUnlock()
	if !ok {
		return nil, nil
	}
	if player.RaceID == uuid.Nil {
		return player, nil
	}
	room, ok := s.registry.Get(player.RaceID)
	if !ok {
		return player, nil
	}
	return player, room
}

// --- bot backfill ---

// scheduleBackfillLocked arms the grace timer that waits for more humans
// before bots start filling seats. Caller must hold room.mu.
func (s *Service) scheduleBackfillLocked(room *Room) {
	cancel := make(chan struct{})
	room.backfillCancel = cancel
	timer := s.clock.NewTimer(s.cfg.BackfillDelay)

	go func() {
		defer timer.Stop()
		select {
		case <-timer.Chan():
			room.mu.Lock()
			if room.closed || room.State != StateWaiting || room.backfillCancel == nil {
				room.mu.Unlock()
				return
			}
			room.backfillCancel = nil
			s.startBotSpawner(room)
			room.mu.Unlock()
		case <-cancel:
		}
	}()
}

// startBotSpawner launches the loop that adds one bot every spawn interval
// until the room is full or no longer Waiting. Caller must hold room.mu.
func (s *Service) startBotSpawner(room *Room) {
	cancel := make(chan struct{})
	room.backfillCancel = cancel
	room.backfillStarted = true
	ticker := s.clock.NewTicker(s.cfg.BotSpawnInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if !s.spawnBot(room) {
					return
				}
			case <-cancel:
				return
			}
		}
	}()
}

// spawnBot adds a single backfill bot and reports whether the spawner should
// keep going. Filling the last seat starts the countdown.
func (s *Service) spawnBot(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateWaiting || len(room.Participants) >= maxParticipants {
		return false
	}

	bot := NewBot(room.TargetWPM)
	if !room.addParticipant(bot) {
		return false
	}

	s.pmu.Lock()
	s.participants[bot.ID] = bot
	s.pmu.Unlock()

	s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypePlayerJoined, bot))
	log.Debug().
		Str("bot_id", bot.ID).
		Str("race_id", room.ID.String()).
		Float64("wpm", bot.WPM).
		Msg("backfill bot joined")

	if len(room.Participants) == maxParticipants {
		s.startCountdownLocked(room)
		return false
	}
	return true
}

// --- countdown and race start ---

// startCountdownLocked transitions Waiting -> Countdown, broadcasts the first
// tick, and arms the once-per-second decrement. Caller must hold room.mu.
func (s *Service) startCountdownLocked(room *Room) {
	if room.closed || room.State != StateWaiting {
		return
	}
	room.State = StateCountdown
	room.CountdownRemaining = s.cfg.CountdownSeconds
	room.cancelBackfill()

	s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypeRaceCountdown, CountdownPayload{
		Countdown: room.CountdownRemaining,
	}))

	cancel := make(chan struct{})
	room.countdownCancel = cancel
	ticker := s.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if s.countdownTick(room) {
					return
				}
			case <-cancel:
				return
			}
		}
	}()
}

// countdownTick decrements and broadcasts the countdown, starting the race at
// zero. Returns true when the countdown loop should stop.
func (s *Service) countdownTick(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateCountdown {
		return true
	}

	room.CountdownRemaining--
	s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypeRaceCountdown, CountdownPayload{
		Countdown: room.CountdownRemaining,
	}))

	if room.CountdownRemaining <= 0 {
		room.countdownCancel = nil
		s.startRaceLocked(room)
		return true
	}
	return false
}

// startRaceLocked transitions Countdown -> Racing, stamps the start time, and
// launches the bot simulation loop. Caller must hold room.mu.
func (s *Service) startRaceLocked(room *Room) {
	room.State = StateRacing
	room.StartedAt = s.clock.Now()
	s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypeRaceStart, struct{}{}))

	cancel := make(chan struct{})
	room.botTickCancel = cancel
	ticker := s.clock.NewTicker(botTickPeriod)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if !s.tickBots(room) {
					return
				}
			case <-cancel:
				return
			}
		}
	}()

	log.Info().
		Str("race_id", room.ID.String()).
		Float64("target_wpm", room.TargetWPM).
		Msg("race started")
}

// tickBots advances every bot in the room by one tick and reports whether the
// simulation loop should continue.
func (s *Service) tickBots(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.State != StateRacing {
		return false
	}

	now := s.clock.Now()
	for _, p := range room.Participants {
		if !p.IsBot || p.Finished {
			continue
		}
		crossed := room.tickBot(p, now)

		s.broadcaster.BroadcastToRace(room.ID, NewEvent(room.ID, EventTypePlayerTyping, TypingPayload{
			ID:          p.ID,
			CurrentWord: p.CurrentWord,
			IsTyping:    true,
			Progress:    p.Progress,
			Position:    p.Position,
		}))

		if crossed {
			s.finishParticipantLocked(room, p)
		}
	}

	return room.State == StateRacing
}

// --- finishing ---

// finishParticipantLocked handles a participant's first 100% crossing: score,
// finishing-order append, rank broadcast, and the room-completion check. Rank
// is strictly arrival order into the finishing order. Caller must hold
// room.mu.
func (s *Service) finishParticipantLocked(room *Room, p *Participant) {
	if p.Finished {
		return
	}
	p.Finished = true
	p.Progress = 100
	p.advance()

	elapsed := s.clock.Now().Sub(room.StartedAt).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	p.Score = int(math.Round(float64(len(room.Passage)) / elapsed * 10))

	rank := room.appendFinisher(p)
	finishEvent := NewEvent(room.ID, EventTypeRaceFinished, FinishedPayload{
		ID:       p.ID,
		Username: p.Username,
		Score:    p.Score,
		Position: rank,
	})
	s.broadcaster.BroadcastToRace(room.ID, finishEvent)
	s.publishEvent(finishEvent)

	log.Info().
		Str("participant_id", p.ID).
		Str("race_id", room.ID.String()).
		Int("rank", rank).
		Int("score", p.Score).
		Msg("participant finished")

	s.checkCompletionLocked(room)
}

// checkCompletionLocked moves the room to Finished once every participant has
// crossed 100%. Finished is terminal; the bot loop is stopped here. Caller
// must hold room.mu.
func (s *Service) checkCompletionLocked(room *Room) {
	if room.State != StateRacing || !room.allFinished() {
		return
	}
	room.State = StateFinished
	room.cancelBotTicks()
	log.Info().Str("race_id", room.ID.String()).Msg("race finished")
}

// recordStats persists one finisher's result and relays the updated profile
// back to that participant. Failure is logged; the race result stands.
func (s *Service) recordStats(raceID uuid.UUID, connID, username string, result RaceResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatsTimeout)
	defer cancel()

	profile, err := s.stats.RecordRaceResult(ctx, username, result)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to persist race result")
		return
	}
	s.broadcaster.BroadcastToParticipant(raceID, connID, NewEvent(raceID, EventTypeUserStatsUpdated, profile))
}

// publishEvent relays an event to the external bus, best-effort.
func (s *Service) publishEvent(event *Event) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StatsTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to relay race event")
		}
	})
}
