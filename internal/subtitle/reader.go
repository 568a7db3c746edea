package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DefaultReader reads SRT subtitle tracks from disk
type DefaultReader struct {
	path string
}

// NewReader creates a new subtitle track reader
func NewReader(path string) Reader {
	return &DefaultReader{path: path}
}

var timeLinePattern = regexp.MustCompile(
	`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// Read parses the SRT file at the configured path.
func (r *DefaultReader) Read() (*Track, error) {
	if !strings.HasSuffix(strings.ToLower(r.path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", r.path)
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("subtitle file does not exist: %s", r.path)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	track, err := ReadBytes(data)
	if err != nil {
		return nil, err
	}
	track.Path = r.path
	return track, nil
}

// ReadBytes parses raw SRT content into a track, detecting its language.
func ReadBytes(data []byte) (*Track, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var entries []Entry
	current := Entry{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, current)
		}
		current = Entry{}
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" {
				continue
			}
			idx, err := strconv.Atoi(strings.TrimPrefix(line, "\uFEFF"))
			if err != nil {
				return nil, fmt.Errorf("invalid subtitle index %q", line)
			}
			current.Index = idx
			state = "time"
		case "time":
			start, end, err := parseTimeLine(line)
			if err != nil {
				return nil, err
			}
			current.Start = start
			current.End = end
			state = "text"
		case "text":
			if line == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan subtitle content: %w", err)
	}
	flush()

	return &Track{
		Entries:  entries,
		Language: detectLanguage(entries),
		Format:   "srt",
	}, nil
}

func parseTimeLine(line string) (time.Duration, time.Duration, error) {
	m := timeLinePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time line %q", line)
	}
	start := composeDuration(m[1], m[2], m[3], m[4])
	end := composeDuration(m[5], m[6], m[7], m[8])
	if start >= end {
		return 0, 0, fmt.Errorf("entry start %v is not before end %v", start, end)
	}
	return start, end, nil
}

func composeDuration(h, m, s, ms string) time.Duration {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mmm, _ := strconv.Atoi(ms)
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(mmm)*time.Millisecond
}

// detectLanguage samples entry text and detects the dominant language.
func detectLanguage(entries []Entry) language.Tag {
	var sb strings.Builder
	for i, e := range entries {
		if i >= 50 {
			break
		}
		sb.WriteString(e.Text)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return language.Und
	}

	info := whatlanggo.Detect(sb.String())
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return language.Und
	}
	return tag
}
