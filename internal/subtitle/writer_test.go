package subtitle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterPrefersTranslatedText(t *testing.T) {
	track := &Track{
		Entries: []Entry{
			{Index: 1, Start: time.Second, End: 2 * time.Second, Text: "Hello", TranslatedText: "你好"},
			{Index: 2, Start: 3 * time.Second, End: 4 * time.Second, Text: "Untranslated line"},
		},
	}

	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, NewWriter().Write(path, track))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "你好")
	assert.NotContains(t, content, "Hello", "translated entries drop the source text")
	assert.Contains(t, content, "Untranslated line", "entries without a translation fall back to the source")
	assert.Contains(t, content, "00:00:01,000 --> 00:00:02,000")
}

func TestWriterReindexesEntries(t *testing.T) {
	track := &Track{
		Entries: []Entry{
			{Index: 7, Start: time.Second, End: 2 * time.Second, Text: "a"},
			{Index: 9, Start: 3 * time.Second, End: 4 * time.Second, Text: "b"},
		},
	}

	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, NewWriter().Write(path, track))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// merged tracks get fresh sequential indices on write
	assert.Equal(t, byte('1'), data[0])
	assert.Contains(t, string(data), "\n2\n")
}

func TestWriterNilTrack(t *testing.T) {
	err := NewWriter().Write(filepath.Join(t.TempDir(), "out.srt"), nil)
	require.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	in := &Track{
		Entries: []Entry{
			{Index: 1, Start: 1500 * time.Millisecond, End: 2750 * time.Millisecond, Text: "First line"},
			{Index: 2, Start: 3 * time.Second, End: 5 * time.Second, Text: "Second line\nwith a break"},
		},
	}

	path := filepath.Join(t.TempDir(), "roundtrip.srt")
	require.NoError(t, NewWriter().Write(path, in))

	out, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, in.Entries[0].Start, out.Entries[0].Start)
	assert.Equal(t, in.Entries[0].End, out.Entries[0].End)
	assert.Equal(t, in.Entries[0].Text, out.Entries[0].Text)
	assert.Equal(t, in.Entries[1].Text, out.Entries[1].Text)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", FormatTimestamp(0))
	assert.Equal(t, "00:00:01,234", FormatTimestamp(1234*time.Millisecond))
	assert.Equal(t, "01:02:03,004", FormatTimestamp(time.Hour+2*time.Minute+3*time.Second+4*time.Millisecond))
	assert.Equal(t, "10:00:00,000", FormatTimestamp(10*time.Hour))
}
