package task

import (
	"time"
)

// Task owns the lifecycle of translating one video's subtitle track.
// Instances are plain values; the pipeline manager guards shared access
// and persists snapshots after every mutation.
type Task struct {
	ID           string            `json:"id"`
	VideoID      string            `json:"video_id"`
	VideoTitle   string            `json:"video_title,omitempty"`
	SubtitlePath string            `json:"subtitle_path"`
	OutputPath   string            `json:"output_path,omitempty"`
	Config       TranslationConfig `json:"config"`
	UserKeywords []string          `json:"user_keywords,omitempty"`

	Status       Status `json:"status"`
	PausedFrom   Status `json:"paused_from,omitempty"`
	CurrentPhase string `json:"current_phase"`

	TotalSegments     int `json:"total_segments"`
	CompletedSegments int `json:"completed_segments"`
	CurrentSegment    int `json:"current_segment"`

	ProgressPercentage     int           `json:"progress_percentage"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	TranslationSpeed       float64       `json:"translation_speed"` // entries per second

	ErrorMessage    string   `json:"error_message,omitempty"`
	MissingSegments []int    `json:"missing_segments,omitempty"`

	LastHeartbeat time.Time  `json:"last_heartbeat"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Transition moves the task to next, enforcing the transition table.
// Pausing records the state being paused from; resuming out of paused
// clears it.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransitionTo(next) {
		return &ErrIllegalTransition{From: string(t.Status), To: string(next)}
	}

	now := time.Now()
	switch next {
	case StatusPaused:
		t.PausedFrom = t.Status
		t.PausedAt = &now
	case StatusCompleted:
		t.CompletedAt = &now
		t.setProgressLocked(100)
	case StatusFailed, StatusCancelled:
		t.CompletedAt = &now
	default:
		if t.Status == StatusPaused {
			t.PausedFrom = ""
			t.PausedAt = nil
		}
	}
	if t.Status == StatusQueued && next == StatusSegmenting {
		t.StartedAt = &now
	}

	t.Status = next
	t.CurrentPhase = phaseLabel(next)
	t.UpdatedAt = now
	return nil
}

// ResumeTarget returns the status a paused task should resume to.
func (t *Task) ResumeTarget() Status {
	if t.PausedFrom != "" {
		return t.PausedFrom
	}
	return StatusQueued
}

// Heartbeat stamps the liveness signal.
func (t *Task) Heartbeat(now time.Time) {
	t.LastHeartbeat = now
	t.UpdatedAt = now
}

// Stalled reports whether the heartbeat is older than the threshold
// while the task is in an active phase.
func (t *Task) Stalled(now time.Time, threshold time.Duration) bool {
	if !t.Status.Active() {
		return false
	}
	if t.LastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(t.LastHeartbeat) > threshold
}

// RecordSegmentDone recomputes progress after a segment reached a
// terminal state. Progress is monotonically non-decreasing while the
// task is not paused or cancelled.
func (t *Task) RecordSegmentDone(completed int, remainingEntries int) {
	t.CompletedSegments = completed
	if t.TotalSegments > 0 {
		t.setProgressLocked(100 * completed / t.TotalSegments)
	}
	if t.TranslationSpeed > 0 {
		t.EstimatedTimeRemaining = time.Duration(float64(remainingEntries)/t.TranslationSpeed) * time.Second
	}
	t.UpdatedAt = time.Now()
}

// ObserveSpeed folds a new entries-per-second sample into the moving
// average used for the time-remaining estimate.
func (t *Task) ObserveSpeed(entries int, elapsed time.Duration) {
	if elapsed <= 0 || entries <= 0 {
		return
	}
	sample := float64(entries) / elapsed.Seconds()
	if t.TranslationSpeed == 0 {
		t.TranslationSpeed = sample
		return
	}
	const alpha = 0.3
	t.TranslationSpeed = alpha*sample + (1-alpha)*t.TranslationSpeed
}

func (t *Task) setProgressLocked(pct int) {
	if pct > 100 {
		pct = 100
	}
	// monotonic while not paused/cancelled
	if pct < t.ProgressPercentage {
		return
	}
	t.ProgressPercentage = pct
}

func phaseLabel(s Status) string {
	switch s {
	case StatusQueued:
		return "Waiting in queue"
	case StatusSegmenting:
		return "Splitting subtitle track"
	case StatusTranslating:
		return "Translating segments"
	case StatusStitching:
		return "Stitching segments"
	case StatusOptimizing:
		return "Adjusting subtitle style"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusPaused:
		return "Paused"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Clone returns a deep copy safe to hand out of the manager's lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	tmp := *t
	tmp.UserKeywords = append([]string(nil), t.UserKeywords...)
	tmp.MissingSegments = append([]int(nil), t.MissingSegments...)
	if t.PausedAt != nil {
		v := *t.PausedAt
		tmp.PausedAt = &v
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		tmp.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		tmp.CompletedAt = &v
	}
	return &tmp
}
