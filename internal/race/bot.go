package race

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastrand"
)

var botNames = []string{
	"SpeedyBot", "TypeMaster", "QuickKeys", "FastFingers", "RapidRacer",
	"TurboTyper", "SwiftScribe", "KeyboardKing", "LetterLegend", "WordWarrior",
	"TypeTitan", "QuickQuill", "SpeedDemon", "FastWriter", "RapidWriter",
}

var botColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8", "#F7DC6F", "#BB8FCE", "#FF69B4",
}

const (
	botTickPeriod = 100 * time.Millisecond
	botMinWPM     = 20

	// Stall window bounds for an error-and-correct pause.
	stallMin    = 200 * time.Millisecond
	stallJitter = 300 * time.Millisecond
)

// NewBot creates a bot participant tuned to race near targetWPM. Its speed
// varies ±10 WPM around the target and its error rate lands in [2%, 5%).
func NewBot(targetWPM float64) *Participant {
	wpm := targetWPM + randFloat()*20 - 10
	if wpm < botMinWPM {
		wpm = botMinWPM
	}
	return &Participant{
		ID:        fmt.Sprintf("bot_%s", uuid.New().String()[:8]),
		Username:  botNames[fastrand.Uint32n(uint32(len(botNames)))],
		Color:     botColors[fastrand.Uint32n(uint32(len(botColors)))],
		IsBot:     true,
		IsTyping:  true,
		WPM:       wpm,
		ErrorRate: 0.02 + randFloat()*0.03,
	}
}

// tickBot advances one bot by one 100ms tick against the room's passage.
// No-op unless the room is racing and the bot still has ground to cover.
// Returns true when this tick took the bot across 100%. Caller must hold the
// room's lock; stall windows resolve through here as well, so overlapping
// stalls serialize on the same per-room timeline as everything else.
func (r *Room) tickBot(bot *Participant, now time.Time) bool {
	if r.State != StateRacing || bot.Finished || bot.Progress >= 100 {
		return false
	}

	passageLen := float64(len(r.Passage))
	if passageLen == 0 {
		return false
	}

	if now.Before(bot.stalledUntil) {
		// Mid-stall: the typed-character count stays pinned but the bot
		// still reports its last known progress.
		return false
	}

	if bot.ErrorRate > 0 && randFloat() < bot.ErrorRate {
		bot.stalledUntil = now.Add(stallMin + time.Duration(randFloat()*float64(stallJitter)))
		return false
	}

	// Five characters per word, a tenth of a second per tick, with per-tick
	// speed jitter in [0.8, 1.2).
	charsPerSecond := bot.WPM * 5 / 60
	variance := 0.8 + randFloat()*0.4
	bot.typedChars += charsPerSecond * 0.1 * variance
	if bot.typedChars > passageLen {
		bot.typedChars = passageLen
	}

	bot.CurrentWord = r.Passage[:int(bot.typedChars)]
	bot.Progress = bot.typedChars / passageLen * 100
	bot.advance()

	return bot.Progress >= 100
}

// randFloat returns a uniform float64 in [0, 1).
func randFloat() float64 {
	return float64(fastrand.Uint32n(1<<24)) / (1 << 24)
}
