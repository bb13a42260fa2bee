// Package passage picks typing passages sized to a race's target speed.
package passage

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fastrand"
)

// Chars-per-word and race-length constants behind the target length formula:
// chars = WPM * (20/60) * 5, a passage a player at that speed types in about
// twenty seconds.
const lengthPerWPM = 1.67

// Selector picks a passage from a fixed catalog based on the target typing
// speed of a room.
type Selector struct {
	passages []string
}

// NewSelector builds a selector over the given catalog. An empty catalog
// degrades to the built-in fallback passages rather than failing.
func NewSelector(passages []string) *Selector {
	if len(passages) == 0 {
		log.Warn().Msg("empty passage catalog, using fallback passages")
		passages = FallbackPassages
	}
	return &Selector{passages: passages}
}

// Select returns a passage sized for roughly twenty seconds of typing at
// targetWPM. Longer catalog entries are preferred and trimmed down to the
// target length at a word boundary.
func (s *Selector) Select(targetWPM float64) string {
	targetLength := int(math.Round(targetWPM * lengthPerWPM))

	var qualifying []string
	for _, text := range s.passages {
		if len(text) >= targetLength {
			qualifying = append(qualifying, text)
		}
	}

	var selected string
	if len(qualifying) > 0 {
		selected = qualifying[fastrand.Uint32n(uint32(len(qualifying)))]
	} else {
		selected = s.passages[fastrand.Uint32n(uint32(len(s.passages)))]
	}

	if len(selected) > targetLength {
		return trimToLength(selected, targetLength)
	}
	return selected
}

// trimToLength cuts text down to at most target characters, backing up to the
// last word boundary as long as that keeps at least 80% of the target length.
func trimToLength(text string, target int) string {
	shortened := text[:target]
	if lastSpace := strings.LastIndex(shortened, " "); float64(lastSpace) > float64(target)*0.8 {
		return shortened[:lastSpace]
	}
	return shortened
}
