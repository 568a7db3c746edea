package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle tracks
type Reader interface {
	Read() (*Track, error)
}

// Writer is the interface for writing subtitle tracks
type Writer interface {
	Write(path string, track *Track) error
}

// Entry represents a single subtitle entry.
// Start must be strictly before End; within a track entries are ordered
// by Start (overlaps allowed but discouraged).
type Entry struct {
	Index          int           `json:"index"`
	Start          time.Duration `json:"start"`
	End            time.Duration `json:"end"`
	Text           string        `json:"text"`
	TranslatedText string        `json:"translated_text,omitempty"`
}

// Duration returns how long the entry stays on screen.
func (e Entry) Duration() time.Duration {
	return e.End - e.Start
}

// Track represents one video's subtitle track
type Track struct {
	Entries  []Entry      `json:"entries"`
	Language language.Tag `json:"language"`
	Format   string       `json:"format"`
	Path     string       `json:"path,omitempty"`
}

// CharCount returns the total number of source-text runes in the track.
func (t *Track) CharCount() int {
	total := 0
	for _, e := range t.Entries {
		total += len([]rune(e.Text))
	}
	return total
}
