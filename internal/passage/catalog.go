package passage

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// FallbackPassages is used whenever the catalog file is missing or yields no
// usable entries. Races still run against these, just with less variety.
var FallbackPassages = []string{
	"The quick brown fox jumps over the lazy dog",
	"Pack my box with five dozen liquor jugs",
	"How vexingly quick daft zebras jump",
}

const minPassageLength = 20

var (
	invisibleChars = regexp.MustCompile("[\u00AD\u200B-\u200D\uFEFF]")
	multiSpace     = regexp.MustCompile(`\s+`)
)

// LoadCatalog reads typing passages from a single-column CSV file with a
// header row. Entries are cleaned and anything too short or malformed is
// dropped. An error is returned only when the file cannot be read at all;
// callers are expected to fall back to FallbackPassages in that case.
func LoadCatalog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open passage catalog: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse passage catalog: %w", err)
	}

	var passages []string
	for i, record := range records {
		if i == 0 || len(record) == 0 {
			// Header row.
			continue
		}
		text := cleanPassage(record[0])
		if len(text) <= minPassageLength || strings.HasPrefix(text, `"`) {
			continue
		}
		passages = append(passages, text)
	}

	log.Info().Int("count", len(passages)).Str("path", path).Msg("loaded typing passages")
	return passages, nil
}

// cleanPassage strips soft hyphens and zero-width characters and collapses
// runs of whitespace into single spaces.
func cleanPassage(text string) string {
	text = invisibleChars.ReplaceAllString(text, "")
	text = multiSpace.ReplaceAllString(strings.TrimSpace(text), " ")
	return text
}
