package race

import (
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewBot(t *testing.T) {
	Convey("Bots are tuned to the room's target speed", t, func() {
		for i := 0; i < 100; i++ {
			bot := NewBot(60)
			So(bot.IsBot, ShouldBeTrue)
			So(bot.ID, ShouldStartWith, "bot_")
			So(bot.Username, ShouldBeIn, botNames)
			So(bot.Color, ShouldBeIn, botColors)
			So(bot.WPM, ShouldBeGreaterThanOrEqualTo, 50.0)
			So(bot.WPM, ShouldBeLessThan, 70.0)
			So(bot.ErrorRate, ShouldBeGreaterThanOrEqualTo, 0.02)
			So(bot.ErrorRate, ShouldBeLessThan, 0.05)
		}

		Convey("And never slower than the floor", func() {
			for i := 0; i < 100; i++ {
				So(NewBot(5).WPM, ShouldBeGreaterThanOrEqualTo, float64(botMinWPM))
			}
		})
	})
}

func TestTickBot(t *testing.T) {
	passage := strings.Repeat("x", 100)

	Convey("Given a racing room with one bot", t, func() {
		room := NewRoom(BracketAdvanced, passage, 60)
		bot := &Participant{ID: "bot_1", IsBot: true, WPM: 60}
		room.Participants = append(room.Participants, bot)
		room.State = StateRacing
		now := time.Now()

		Convey("When the room is not racing", func() {
			room.State = StateWaiting

			Convey("Then ticks do nothing", func() {
				So(room.tickBot(bot, now), ShouldBeFalse)
				So(bot.Progress, ShouldEqual, 0)
			})
		})

		Convey("When ticking with errors disabled", func() {
			bot.ErrorRate = 0
			finished := 0
			ticks := 0
			for ticks = 1; ticks <= 300; ticks++ {
				now = now.Add(botTickPeriod)
				if room.tickBot(bot, now) {
					finished++
				}
				if bot.Progress >= 100 {
					break
				}
			}

			Convey("Then progress per tick stays inside the jitter envelope", func() {
				// 60 WPM is 5 chars/s, so each 100ms tick covers 0.4-0.6
				// chars of a 100 char passage. Finishing takes 167-250 ticks.
				So(ticks, ShouldBeGreaterThan, 160)
				So(ticks, ShouldBeLessThanOrEqualTo, 250)
			})

			Convey("Then the crossing is reported exactly once", func() {
				So(finished, ShouldEqual, 1)
				So(bot.Progress, ShouldEqual, 100)
				So(bot.CurrentWord, ShouldEqual, passage)
				So(room.tickBot(bot, now.Add(botTickPeriod)), ShouldBeFalse)
			})

			Convey("Then the track position follows progress", func() {
				So(bot.Position.Z, ShouldEqual, float64(trackStartZ)+bot.Progress)
			})
		})

		Convey("When the bot always errors", func() {
			bot.ErrorRate = 1
			So(room.tickBot(bot, now), ShouldBeFalse)

			Convey("Then it stalls inside the pause window", func() {
				So(bot.stalledUntil, ShouldHappenOnOrAfter, now.Add(stallMin))
				So(bot.stalledUntil, ShouldHappenBefore, now.Add(stallMin+stallJitter))
			})

			Convey("Then progress stays pinned until the stall resolves", func() {
				So(room.tickBot(bot, now.Add(100*time.Millisecond)), ShouldBeFalse)
				So(bot.typedChars, ShouldEqual, 0)

				bot.ErrorRate = 0
				So(room.tickBot(bot, now.Add(stallMin+stallJitter)), ShouldBeFalse)
				So(bot.typedChars, ShouldBeGreaterThan, 0)
			})
		})
	})
}
