package task

import "fmt"

// Status is the lifecycle state of a translation task.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusSegmenting  Status = "segmenting"
	StatusTranslating Status = "translating"
	StatusStitching   Status = "stitching"
	StatusOptimizing  Status = "optimizing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusPaused      Status = "paused"
	StatusCancelled   Status = "cancelled"
)

// taskTransitions is the exhaustive transition table for task statuses.
// failed, paused and cancelled are reachable from any non-terminal state;
// paused resumes back to the state it was paused from.
var taskTransitions = map[Status][]Status{
	StatusQueued:      {StatusSegmenting, StatusFailed, StatusPaused, StatusCancelled},
	StatusSegmenting:  {StatusTranslating, StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusTranslating: {StatusStitching, StatusFailed, StatusPaused, StatusCancelled},
	StatusStitching:   {StatusOptimizing, StatusFailed, StatusPaused, StatusCancelled},
	StatusOptimizing:  {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:      {StatusQueued, StatusSegmenting, StatusTranslating, StatusStitching, StatusOptimizing, StatusFailed, StatusCancelled},
	StatusCompleted:   {},
	StatusFailed:      {},
	StatusCancelled:   {},
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether a worker is expected to be making progress
// and updating the heartbeat.
func (s Status) Active() bool {
	switch s {
	case StatusSegmenting, StatusTranslating, StatusStitching, StatusOptimizing:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SegmentStatus is the lifecycle state of a single segment.
type SegmentStatus string

const (
	SegmentPending     SegmentStatus = "pending"
	SegmentTranslating SegmentStatus = "translating"
	SegmentCompleted   SegmentStatus = "completed"
	SegmentFailed      SegmentStatus = "failed"
	SegmentRetrying    SegmentStatus = "retrying"
)

var segmentTransitions = map[SegmentStatus][]SegmentStatus{
	SegmentPending:     {SegmentTranslating},
	SegmentTranslating: {SegmentCompleted, SegmentFailed},
	SegmentFailed:      {SegmentRetrying},
	SegmentRetrying:    {SegmentTranslating},
	SegmentCompleted:   {},
}

// CanTransitionTo reports whether s -> next is a legal segment transition.
func (s SegmentStatus) CanTransitionTo(next SegmentStatus) bool {
	for _, allowed := range segmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned when a status change violates the
// transition table.
type ErrIllegalTransition struct {
	From string
	To   string
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// TranslationConfig is the immutable configuration snapshot attached to
// every translated track. It participates in the cache fingerprint, so
// adding a field here requires extending fingerprint.Config as well.
type TranslationConfig struct {
	Model              string `json:"model"`
	Provider           string `json:"provider"`
	TaiwanOptimization bool   `json:"taiwan_optimization"`
	NaturalTone        bool   `json:"natural_tone"`
	SubtitleTiming     bool   `json:"subtitle_timing"`
}
