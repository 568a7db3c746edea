package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

// DefaultWriter is the default subtitle track writer
type DefaultWriter struct{}

// NewWriter creates a new subtitle track writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write writes the track to the given path in SRT format
func (w *DefaultWriter) Write(path string, track *Track) error {
	if track == nil {
		return fmt.Errorf("track is empty")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return writeSRT(writer, track)
}

func writeSRT(w io.Writer, track *Track) error {
	for i, entry := range track.Entries {
		fmt.Fprintf(w, "%d\n", i+1)

		fmt.Fprintf(w, "%s --> %s\n", FormatTimestamp(entry.Start), FormatTimestamp(entry.End))

		// use translated text, fallback to original if empty
		text := entry.TranslatedText
		if text == "" {
			text = entry.Text
		}
		fmt.Fprintf(w, "%s\n\n", text)
	}
	return nil
}

// FormatTimestamp formats a duration in the SRT time format HH:MM:SS,mmm
func FormatTimestamp(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
