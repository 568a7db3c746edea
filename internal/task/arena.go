package task

import (
	"sync"
	"sync/atomic"
	"time"

	"subweave/internal/subtitle"
)

// segment statuses encoded for atomic claim operations
const (
	segStatePending int32 = iota
	segStateTranslating
	segStateCompleted
	segStateFailed
	segStateRetrying
)

func segStateOf(s SegmentStatus) int32 {
	switch s {
	case SegmentTranslating:
		return segStateTranslating
	case SegmentCompleted:
		return segStateCompleted
	case SegmentFailed:
		return segStateFailed
	case SegmentRetrying:
		return segStateRetrying
	}
	return segStatePending
}

func segStatusOf(state int32) SegmentStatus {
	switch state {
	case segStateTranslating:
		return SegmentTranslating
	case segStateCompleted:
		return SegmentCompleted
	case segStateFailed:
		return SegmentFailed
	case segStateRetrying:
		return SegmentRetrying
	}
	return SegmentPending
}

// SegmentRecord is one translation unit inside the arena. The status
// field is claimed with compare-and-swap so no two workers process the
// same segment; everything else is guarded by the record mutex.
type SegmentRecord struct {
	TaskID string
	Index  int

	state atomic.Int32

	mu             sync.Mutex
	input          []subtitle.Entry
	result         []subtitle.Entry
	partial        []subtitle.Entry
	subtitleCount  int
	characterCount int
	estimatedTokens int
	processingTime time.Duration
	retryCount     int
	errorMessage   string
	startedAt      *time.Time
	completedAt    *time.Time
}

// Claim atomically moves a pending segment to translating. Returns
// false if another worker got there first or the segment is not pending.
func (r *SegmentRecord) Claim() bool {
	if !r.state.CompareAndSwap(segStatePending, segStateTranslating) {
		return false
	}
	r.mu.Lock()
	now := time.Now()
	r.startedAt = &now
	r.mu.Unlock()
	return true
}

// Reclaim moves a retrying segment back to translating. Only the worker
// that recorded the failed attempt calls this, after its backoff delay;
// a retrying segment is never handed to another worker, otherwise the
// backoff schedule would collapse to whoever polls first.
func (r *SegmentRecord) Reclaim() bool {
	if !r.state.CompareAndSwap(segStateRetrying, segStateTranslating) {
		return false
	}
	r.mu.Lock()
	now := time.Now()
	r.startedAt = &now
	r.mu.Unlock()
	return true
}

// Status returns the current segment status.
func (r *SegmentRecord) Status() SegmentStatus {
	return segStatusOf(r.state.Load())
}

// Input returns the segment's source entries.
func (r *SegmentRecord) Input() []subtitle.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input
}

// RetryCount returns the number of failed attempts so far.
func (r *SegmentRecord) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// Complete records a successful result and moves to completed.
func (r *SegmentRecord) Complete(result []subtitle.Entry, elapsed time.Duration) {
	r.mu.Lock()
	r.result = result
	r.processingTime = elapsed
	r.errorMessage = ""
	now := time.Now()
	r.completedAt = &now
	r.mu.Unlock()
	r.state.Store(segStateCompleted)
}

// FailAttempt records a failed attempt. If budget remains the segment
// moves to retrying and can be claimed again; otherwise it is
// terminally failed. Returns true when a retry is still allowed.
func (r *SegmentRecord) FailAttempt(errMsg string, partial []subtitle.Entry, maxRetries int) bool {
	r.mu.Lock()
	r.retryCount++
	r.errorMessage = errMsg
	if len(partial) > 0 && len(partial) == len(r.input) {
		r.partial = partial
	}
	retry := r.retryCount < maxRetries
	if !retry {
		now := time.Now()
		r.completedAt = &now
	}
	r.mu.Unlock()

	if retry {
		r.state.Store(segStateRetrying)
	} else {
		r.state.Store(segStateFailed)
	}
	return retry
}

// FailTerminal fails the segment immediately without charging the
// retry budget, used for configuration errors that no retry can fix.
func (r *SegmentRecord) FailTerminal(errMsg string) {
	r.mu.Lock()
	r.errorMessage = errMsg
	now := time.Now()
	r.completedAt = &now
	r.mu.Unlock()
	r.state.Store(segStateFailed)
}

// Result returns the translated entries, or the preserved partial
// result when the segment terminally failed.
func (r *SegmentRecord) Result() ([]subtitle.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status() == SegmentCompleted {
		return r.result, true
	}
	if len(r.partial) > 0 {
		return r.partial, true
	}
	return nil, false
}

// SegmentTask is a plain snapshot of a segment record, used for
// persistence and progress reporting.
type SegmentTask struct {
	TranslationTaskID string           `json:"translation_task_id"`
	SegmentIndex      int              `json:"segment_index"`
	Status            SegmentStatus    `json:"status"`
	SubtitleCount     int              `json:"subtitle_count"`
	CharacterCount    int              `json:"character_count"`
	EstimatedTokens   int              `json:"estimated_tokens"`
	ProcessingTimeMs  int64            `json:"processing_time_ms"`
	RetryCount        int              `json:"retry_count"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	PartialResult     []subtitle.Entry `json:"partial_result,omitempty"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// Snapshot copies the record into a SegmentTask.
func (r *SegmentRecord) Snapshot() SegmentTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := SegmentTask{
		TranslationTaskID: r.TaskID,
		SegmentIndex:      r.Index,
		Status:            segStatusOf(r.state.Load()),
		SubtitleCount:     r.subtitleCount,
		CharacterCount:    r.characterCount,
		EstimatedTokens:   r.estimatedTokens,
		ProcessingTimeMs:  r.processingTime.Milliseconds(),
		RetryCount:        r.retryCount,
		ErrorMessage:      r.errorMessage,
		PartialResult:     append([]subtitle.Entry(nil), r.partial...),
	}
	if r.startedAt != nil {
		v := *r.startedAt
		snap.StartedAt = &v
	}
	if r.completedAt != nil {
		v := *r.completedAt
		snap.CompletedAt = &v
	}
	return snap
}

// Arena holds the segment records of one task, indexed by segment
// index. Records are created once and mutated in place.
type Arena struct {
	taskID  string
	records []*SegmentRecord
}

// NewArena builds the arena for a task from segmented input. Token
// estimation is a coarse chars-based heuristic used only for reporting.
func NewArena(taskID string, inputs [][]subtitle.Entry) *Arena {
	records := make([]*SegmentRecord, 0, len(inputs))
	for i, entries := range inputs {
		chars := 0
		for _, e := range entries {
			chars += len([]rune(e.Text))
		}
		rec := &SegmentRecord{
			TaskID:          taskID,
			Index:           i,
			input:           entries,
			subtitleCount:   len(entries),
			characterCount:  chars,
			estimatedTokens: chars/3 + len(entries)*4,
		}
		records = append(records, rec)
	}
	return &Arena{taskID: taskID, records: records}
}

// Restore pre-marks a record as completed, used when resuming a task
// whose earlier run already translated some segments.
func (a *Arena) Restore(index int, result []subtitle.Entry, retryCount int) {
	if index < 0 || index >= len(a.records) {
		return
	}
	rec := a.records[index]
	rec.mu.Lock()
	rec.result = result
	rec.retryCount = retryCount
	rec.mu.Unlock()
	rec.state.Store(segStateCompleted)
}

// ClaimNext claims the lowest-index claimable segment.
func (a *Arena) ClaimNext() (*SegmentRecord, bool) {
	for _, rec := range a.records {
		if rec.Claim() {
			return rec, true
		}
	}
	return nil, false
}

// Get returns the record at index.
func (a *Arena) Get(index int) (*SegmentRecord, bool) {
	if index < 0 || index >= len(a.records) {
		return nil, false
	}
	return a.records[index], true
}

// Len returns the number of segments.
func (a *Arena) Len() int {
	return len(a.records)
}

// Records returns the records in index order.
func (a *Arena) Records() []*SegmentRecord {
	return a.records
}

// CountByStatus tallies records per status.
func (a *Arena) CountByStatus() map[SegmentStatus]int {
	counts := make(map[SegmentStatus]int)
	for _, rec := range a.records {
		counts[rec.Status()]++
	}
	return counts
}

// Done reports whether every segment reached a terminal segment state.
func (a *Arena) Done() bool {
	for _, rec := range a.records {
		switch rec.Status() {
		case SegmentCompleted, SegmentFailed:
		default:
			return false
		}
	}
	return true
}
