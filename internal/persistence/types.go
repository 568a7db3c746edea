package persistence

import (
	"time"

	"subweave/internal/subtitle"
	"subweave/internal/task"
)

// SegmentRow is a persisted segment task, including the translated
// entries for completed segments so a resumed run can skip them.
type SegmentRow struct {
	task.SegmentTask
	Result []subtitle.Entry
}

// CacheEntry is one content-addressed translation result.
type CacheEntry struct {
	ContentHash       string
	ConfigFingerprint string
	Entries           []subtitle.Entry
	AccessCount       int
	CreatedAt         time.Time
	LastAccessedAt    time.Time
}
