// Package fingerprint computes the deterministic cache key components.
// Cache hit correctness depends entirely on these functions staying
// stable, so they are pure and covered by their own unit tests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"subweave/internal/subtitle"
	"subweave/internal/task"
)

// Content hashes the normalized source text of a segment. Normalization
// is whitespace-insensitive: runs of whitespace (including line breaks)
// collapse to a single space, so re-submission of an identical track
// is a guaranteed hit regardless of formatting.
func Content(entries []subtitle.Entry) string {
	h := sha256.New()
	for _, entry := range entries {
		h.Write([]byte(normalize(entry.Text)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Config hashes a canonical rendering of the translation configuration:
// fixed field order, every field explicit. Reordering or defaulting of
// the snapshot therefore never changes the fingerprint.
func Config(cfg task.TranslationConfig) string {
	canonical := fmt.Sprintf(
		"model=%s;provider=%s;taiwan_optimization=%t;natural_tone=%t;subtitle_timing=%t",
		strings.TrimSpace(cfg.Model),
		strings.TrimSpace(cfg.Provider),
		cfg.TaiwanOptimization,
		cfg.NaturalTone,
		cfg.SubtitleTiming,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
