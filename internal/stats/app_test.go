package stats

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFoldWPM(t *testing.T) {
	Convey("The rolling speed window", t, func() {
		Convey("Averages what it has seen so far", func() {
			history, avg := foldWPM(nil, 40)
			So(history, ShouldResemble, []float64{40})
			So(avg, ShouldEqual, 40)

			history, avg = foldWPM(history, 50)
			So(history, ShouldResemble, []float64{40, 50})
			So(avg, ShouldEqual, 45)
		})

		Convey("Rounds the mean to the nearest whole number", func() {
			_, avg := foldWPM([]float64{40, 41}, 40)
			// mean 40.33
			So(avg, ShouldEqual, 40)

			_, avg = foldWPM([]float64{41, 42}, 41)
			// mean 41.33 vs 41.67
			So(avg, ShouldEqual, 41)

			_, avg = foldWPM([]float64{42, 42}, 41)
			So(avg, ShouldEqual, 42)
		})

		Convey("Keeps only the ten most recent races", func() {
			var history []float64
			for wpm := 1.0; wpm <= 12; wpm++ {
				history, _ = foldWPM(history, wpm)
			}
			So(len(history), ShouldEqual, wpmWindow)
			So(history[0], ShouldEqual, 3)
			So(history[len(history)-1], ShouldEqual, 12)

			_, avg := foldWPM(history[:wpmWindow-1], 13)
			So(len(history), ShouldEqual, wpmWindow)
			So(avg, ShouldEqual, 8)
		})
	})
}
