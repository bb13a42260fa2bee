package race

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBracketFor(t *testing.T) {
	Convey("Skill brackets bucket by average typing speed", t, func() {
		So(BracketFor(0), ShouldEqual, BracketBeginner)
		So(BracketFor(29.9), ShouldEqual, BracketBeginner)
		So(BracketFor(30), ShouldEqual, BracketIntermediate)
		So(BracketFor(49.9), ShouldEqual, BracketIntermediate)
		So(BracketFor(50), ShouldEqual, BracketAdvanced)
		So(BracketFor(69.9), ShouldEqual, BracketAdvanced)
		So(BracketFor(70), ShouldEqual, BracketExpert)
		So(BracketFor(120), ShouldEqual, BracketExpert)
	})
}

func TestRoom_Participants(t *testing.T) {
	Convey("Given a fresh waiting room", t, func() {
		room := NewRoom(BracketIntermediate, "some passage text", 40)

		Convey("When participants join in order", func() {
			for i := 0; i < 5; i++ {
				p := &Participant{ID: string(rune('a' + i)), WPM: 40}
				So(room.addParticipant(p), ShouldBeTrue)
			}

			Convey("Then lanes 0..4 are assigned lowest-first with no duplicates", func() {
				seen := map[int]bool{}
				for i, p := range room.Participants {
					So(p.Lane, ShouldEqual, i)
					So(seen[p.Lane], ShouldBeFalse)
					seen[p.Lane] = true
				}
			})

			Convey("And a sixth join is rejected", func() {
				So(room.addParticipant(&Participant{ID: "f"}), ShouldBeFalse)
				So(len(room.Participants), ShouldEqual, 5)
			})
		})

		Convey("When a middle participant leaves and another joins", func() {
			for i := 0; i < 3; i++ {
				room.addParticipant(&Participant{ID: string(rune('a' + i))})
			}
			So(room.removeParticipant("b"), ShouldBeTrue)
			late := &Participant{ID: "d"}
			So(room.addParticipant(late), ShouldBeTrue)

			Convey("Then the freed lane is reused", func() {
				So(late.Lane, ShouldEqual, 1)
			})
		})

		Convey("When joins race against a state transition", func() {
			room.State = StateCountdown

			Convey("Then joining is rejected", func() {
				So(room.addParticipant(&Participant{ID: "x"}), ShouldBeFalse)
			})
		})
	})
}

func TestRoom_FinishingOrder(t *testing.T) {
	Convey("Given a racing room with participants", t, func() {
		room := NewRoom(BracketAdvanced, "passage", 60)
		a := &Participant{ID: "a", Username: "alice"}
		b := &Participant{ID: "b", Username: "bob"}
		room.addParticipant(a)
		room.addParticipant(b)
		room.State = StateRacing

		Convey("When finishers are appended in arrival order", func() {
			So(room.appendFinisher(a), ShouldEqual, 1)
			So(room.appendFinisher(b), ShouldEqual, 2)

			Convey("Then ranks follow arrival and never reorder", func() {
				So(room.FinishingOrder[0].ID, ShouldEqual, "a")
				So(room.FinishingOrder[1].ID, ShouldEqual, "b")
			})

			Convey("And appending the same participant again is a no-op returning its rank", func() {
				So(room.appendFinisher(a), ShouldEqual, 1)
				So(len(room.FinishingOrder), ShouldEqual, 2)
				So(len(room.FinishingOrder), ShouldBeLessThanOrEqualTo, len(room.Participants))
			})
		})

		Convey("When only some participants have crossed 100%", func() {
			a.Progress = 100

			Convey("Then the room is not complete", func() {
				So(room.allFinished(), ShouldBeFalse)
			})
		})

		Convey("When every participant has crossed 100%", func() {
			a.Progress = 100
			b.Progress = 100

			Convey("Then the room is complete", func() {
				So(room.allFinished(), ShouldBeTrue)
			})
		})
	})
}

func TestRoom_TargetWPM(t *testing.T) {
	Convey("Given a room with humans and bots", t, func() {
		room := NewRoom(BracketIntermediate, "passage", 40)
		room.addParticipant(&Participant{ID: "h1", WPM: 40})
		room.addParticipant(&Participant{ID: "h2", WPM: 48})
		room.addParticipant(&Participant{ID: "b1", IsBot: true, WPM: 90})

		Convey("When the target speed is recomputed", func() {
			room.recomputeTargetWPM()

			Convey("Then only human speeds contribute", func() {
				So(room.TargetWPM, ShouldEqual, 44)
			})
		})

		Convey("When the last human leaves", func() {
			room.removeParticipant("h1")
			room.removeParticipant("h2")
			room.TargetWPM = 44
			room.recomputeTargetWPM()

			Convey("Then the previous target stands", func() {
				So(room.TargetWPM, ShouldEqual, 44)
			})
		})
	})
}
