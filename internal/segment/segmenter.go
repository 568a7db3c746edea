package segment

import (
	"time"

	"subweave/internal/subtitle"
)

// Budget bounds a single translation segment. A segment is closed as soon
// as adding the next entry would exceed either limit.
type Budget struct {
	MaxChars   int
	MaxEntries int
}

const (
	DefaultMaxChars   = 1500
	DefaultMaxEntries = 40
)

// DefaultBudget returns the default per-segment budget.
func DefaultBudget() Budget {
	return Budget{MaxChars: DefaultMaxChars, MaxEntries: DefaultMaxEntries}
}

func (b Budget) normalized() Budget {
	if b.MaxChars <= 0 {
		b.MaxChars = DefaultMaxChars
	}
	if b.MaxEntries <= 0 {
		b.MaxEntries = DefaultMaxEntries
	}
	return b
}

// Segment is a contiguous run of subtitle entries translated as one
// LLM request. Boundaries are always entry boundaries.
type Segment struct {
	Index     int
	Entries   []subtitle.Entry
	CharCount int
}

// Start returns the start time of the first entry.
func (s Segment) Start() time.Duration {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[0].Start
}

// End returns the end time of the last entry.
func (s Segment) End() time.Duration {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[len(s.Entries)-1].End
}

// Split walks the entries in order and accumulates them into segments
// bounded by the budget. Concatenating all segments in order reproduces
// the input exactly; an empty input yields zero segments.
func Split(entries []subtitle.Entry, budget Budget) []Segment {
	budget = budget.normalized()

	var segments []Segment
	var current []subtitle.Entry
	chars := 0

	close := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, Segment{
			Index:     len(segments),
			Entries:   current,
			CharCount: chars,
		})
		current = nil
		chars = 0
	}

	for _, entry := range entries {
		entryChars := len([]rune(entry.Text))
		if len(current) > 0 &&
			(len(current)+1 > budget.MaxEntries || chars+entryChars > budget.MaxChars) {
			close()
		}
		current = append(current, entry)
		chars += entryChars
	}
	close()

	return segments
}
