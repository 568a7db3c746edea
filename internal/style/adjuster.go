// Package style applies the post-translation merge passes that re-join
// fragmented subtitle entries into complete, readable sentences.
package style

import (
	"strings"
	"time"
	"unicode"

	"subweave/internal/subtitle"
)

// Options configures the two merge passes. A disabled pass is a strict
// no-op on the output.
type Options struct {
	MergeEnabled         bool
	SentenceMergeEnabled bool
	MaxChars             int
	MaxTimeGap           time.Duration
	MaxMergeSegments     int
}

// DefaultOptions returns the default adjuster configuration.
func DefaultOptions() Options {
	return Options{
		MergeEnabled:         true,
		SentenceMergeEnabled: true,
		MaxChars:             42,
		MaxTimeGap:           300 * time.Millisecond,
		MaxMergeSegments:     3,
	}
}

func (o Options) normalized() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = 42
	}
	if o.MaxTimeGap <= 0 {
		o.MaxTimeGap = 300 * time.Millisecond
	}
	if o.MaxMergeSegments <= 1 {
		o.MaxMergeSegments = 3
	}
	return o
}

// Adjuster runs the merge passes over a stitched track. Deterministic
// for identical input and options.
type Adjuster struct {
	opts Options
}

func NewAdjuster(opts Options) *Adjuster {
	return &Adjuster{opts: opts.normalized()}
}

// Adjust runs the enabled passes in order: fragment merging first, then
// complete-sentence merging.
func (a *Adjuster) Adjust(entries []subtitle.Entry) []subtitle.Entry {
	out := entries
	if a.opts.MergeEnabled {
		out = a.mergePass(out, a.fragmentCandidate)
	}
	if a.opts.SentenceMergeEnabled {
		out = a.mergePass(out, a.sentenceCandidate)
	}
	return out
}

// mergePass walks the entries once, absorbing up to MaxMergeSegments
// consecutive entries into one whenever the candidate predicate fires.
func (a *Adjuster) mergePass(entries []subtitle.Entry, candidate func(cur, next subtitle.Entry) bool) []subtitle.Entry {
	if len(entries) < 2 {
		return entries
	}

	out := make([]subtitle.Entry, 0, len(entries))
	i := 0
	for i < len(entries) {
		cur := entries[i]
		absorbed := 1
		for i+1 < len(entries) && absorbed < a.opts.MaxMergeSegments && candidate(cur, entries[i+1]) {
			cur = mergeEntries(cur, entries[i+1])
			absorbed++
			i++
		}
		out = append(out, cur)
		i++
	}
	return out
}

// fragmentCandidate fires when the current entry trails a comma-like
// connector, the next entry opens with a continuation word, or the
// current entry ends in a modal/future-tense marker.
func (a *Adjuster) fragmentCandidate(cur, next subtitle.Entry) bool {
	if !a.withinLimits(cur, next) {
		return false
	}
	curText := displayText(cur)
	nextText := displayText(next)
	return endsWithConnector(curText) ||
		beginsWithContinuation(nextText) ||
		endsWithModalMarker(curText)
}

// sentenceCandidate fires when the current entry does not end in
// terminal punctuation.
func (a *Adjuster) sentenceCandidate(cur, next subtitle.Entry) bool {
	if !a.withinLimits(cur, next) {
		return false
	}
	return !IsCompleteSentence(displayText(cur))
}

func (a *Adjuster) withinLimits(cur, next subtitle.Entry) bool {
	gap := next.Start - cur.End
	if gap > a.opts.MaxTimeGap {
		return false
	}
	combined := len([]rune(displayText(cur))) + len([]rune(displayText(next)))
	return combined <= a.opts.MaxChars
}

// mergeEntries joins two entries: start of the first, end of the second.
func mergeEntries(cur, next subtitle.Entry) subtitle.Entry {
	return subtitle.Entry{
		Index:          cur.Index,
		Start:          cur.Start,
		End:            next.End,
		Text:           joinText(cur.Text, next.Text),
		TranslatedText: joinText(cur.TranslatedText, next.TranslatedText),
	}
}

// joinText concatenates subtitle texts, inserting a space only between
// Latin-script boundaries; CJK text joins directly.
func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	ar := []rune(a)
	br := []rune(b)
	if isCJK(ar[len(ar)-1]) || isCJK(br[0]) {
		return a + b
	}
	return a + " " + b
}

var terminalPunctuation = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '…': true,
}

var closingQuotes = map[rune]bool{
	'"': true, '\'': true, '”': true, '’': true, '」': true, '』': true, '»': true,
}

// IsCompleteSentence reports whether the text ends in terminal
// punctuation, optionally followed by a closing quotation mark.
func IsCompleteSentence(text string) bool {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return true
	}
	i := len(runes) - 1
	for i >= 0 && closingQuotes[runes[i]] {
		i--
	}
	return i >= 0 && terminalPunctuation[runes[i]]
}

var connectorRunes = map[rune]bool{
	',': true, '，': true, '、': true, ';': true, '；': true, '：': true, ':': true,
}

func endsWithConnector(text string) bool {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return false
	}
	return connectorRunes[runes[len(runes)-1]]
}

var continuationWords = []string{
	"and", "but", "so", "or", "however", "because", "although", "then",
	"而且", "但是", "但", "所以", "然而", "因為", "因为", "不過", "不过", "還有", "还有", "然後", "然后",
}

func beginsWithContinuation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, word := range continuationWords {
		if !strings.HasPrefix(lower, word) {
			continue
		}
		rest := lower[len(word):]
		if rest == "" {
			return true
		}
		r := []rune(rest)[0]
		// word boundary: Latin continuation words must not match prefixes
		// like "android"
		if !unicode.IsLetter(r) || isCJK([]rune(word)[0]) {
			return true
		}
	}
	return false
}

var modalMarkers = []string{
	"will", "would", "gonna", "to",
	"要", "會", "会", "想", "能", "將", "将", "可以",
}

func endsWithModalMarker(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return false
	}
	for _, marker := range modalMarkers {
		if !strings.HasSuffix(trimmed, marker) {
			continue
		}
		rest := []rune(strings.TrimSuffix(trimmed, marker))
		if len(rest) == 0 {
			return true
		}
		last := rest[len(rest)-1]
		if !unicode.IsLetter(last) || isCJK([]rune(marker)[0]) {
			return true
		}
	}
	return false
}

func displayText(e subtitle.Entry) string {
	if e.TranslatedText != "" {
		return e.TranslatedText
	}
	return e.Text
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
