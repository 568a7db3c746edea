package segment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/subtitle"
)

func makeEntries(n int) []subtitle.Entry {
	entries := make([]subtitle.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, subtitle.Entry{
			Index: i + 1,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i)*time.Second + 900*time.Millisecond,
			Text:  fmt.Sprintf("line %d", i+1),
		})
	}
	return entries
}

func TestSplit_EmptyTrackYieldsZeroSegments(t *testing.T) {
	assert.Empty(t, Split(nil, DefaultBudget()))
	assert.Empty(t, Split([]subtitle.Entry{}, DefaultBudget()))
}

func TestSplit_EntryBudget(t *testing.T) {
	entries := makeEntries(10)

	segments := Split(entries, Budget{MaxChars: 10_000, MaxEntries: 4})

	require.Len(t, segments, 3)
	assert.Len(t, segments[0].Entries, 4)
	assert.Len(t, segments[1].Entries, 4)
	assert.Len(t, segments[2].Entries, 2)
	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
	}
}

func TestSplit_CharBudget(t *testing.T) {
	entries := []subtitle.Entry{
		{Index: 1, Start: 0, End: time.Second, Text: "aaaa"},
		{Index: 2, Start: time.Second, End: 2 * time.Second, Text: "bbbb"},
		{Index: 3, Start: 2 * time.Second, End: 3 * time.Second, Text: "cccc"},
	}

	segments := Split(entries, Budget{MaxChars: 8, MaxEntries: 100})

	require.Len(t, segments, 2)
	assert.Len(t, segments[0].Entries, 2)
	assert.Len(t, segments[1].Entries, 1)
}

func TestSplit_OversizedEntryStillGetsOwnSegment(t *testing.T) {
	entries := []subtitle.Entry{
		{Index: 1, Start: 0, End: time.Second, Text: "this single entry is longer than the whole character budget"},
		{Index: 2, Start: time.Second, End: 2 * time.Second, Text: "short"},
	}

	segments := Split(entries, Budget{MaxChars: 10, MaxEntries: 100})

	// never splits inside an entry
	require.Len(t, segments, 2)
	assert.Len(t, segments[0].Entries, 1)
	assert.Len(t, segments[1].Entries, 1)
}

func TestSplit_CharCountIsRuneBased(t *testing.T) {
	entries := []subtitle.Entry{
		{Index: 1, Start: 0, End: time.Second, Text: "你好世界"},
	}

	segments := Split(entries, DefaultBudget())

	require.Len(t, segments, 1)
	assert.Equal(t, 4, segments[0].CharCount)
}

func TestSplit_ConcatenationReproducesInput(t *testing.T) {
	entries := makeEntries(137)

	segments := Split(entries, Budget{MaxChars: 60, MaxEntries: 7})

	var got []subtitle.Entry
	for _, seg := range segments {
		got = append(got, seg.Entries...)
	}
	require.Equal(t, entries, got)
}
