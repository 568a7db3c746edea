package pipeline

import (
	"time"

	"subweave/internal/task"
)

// SegmentProgress is the per-segment slice of a progress report.
type SegmentProgress struct {
	Index          int                `json:"index"`
	Status         task.SegmentStatus `json:"status"`
	SubtitleCount  int                `json:"subtitle_count"`
	CharacterCount int                `json:"character_count"`
	RetryCount     int                `json:"retry_count"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// Progress is a point-in-time view of one task, assembled under the
// manager's lock and safe to serialize as-is.
type Progress struct {
	TaskID                 string            `json:"task_id"`
	VideoID                string            `json:"video_id"`
	Status                 task.Status       `json:"status"`
	CurrentPhase           string            `json:"current_phase"`
	ProgressPercentage     int               `json:"progress_percentage"`
	TotalSegments          int               `json:"total_segments"`
	CompletedSegments      int               `json:"completed_segments"`
	CurrentSegment         int               `json:"current_segment"`
	FailedSegments         int               `json:"failed_segments"`
	TranslationSpeed       float64           `json:"translation_speed"`
	EstimatedTimeRemaining time.Duration     `json:"estimated_time_remaining"`
	ErrorMessage           string            `json:"error_message,omitempty"`
	MissingSegments        []int             `json:"missing_segments,omitempty"`
	StartedAt              *time.Time        `json:"started_at,omitempty"`
	UpdatedAt              time.Time         `json:"updated_at"`
	Segments               []SegmentProgress `json:"segments,omitempty"`
}

func buildProgress(t *task.Task, arena *task.Arena) Progress {
	p := Progress{
		TaskID:                 t.ID,
		VideoID:                t.VideoID,
		Status:                 t.Status,
		CurrentPhase:           t.CurrentPhase,
		ProgressPercentage:     t.ProgressPercentage,
		TotalSegments:          t.TotalSegments,
		CompletedSegments:      t.CompletedSegments,
		CurrentSegment:         t.CurrentSegment,
		TranslationSpeed:       t.TranslationSpeed,
		EstimatedTimeRemaining: t.EstimatedTimeRemaining,
		ErrorMessage:           t.ErrorMessage,
		MissingSegments:        append([]int(nil), t.MissingSegments...),
		UpdatedAt:              t.UpdatedAt,
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		p.StartedAt = &v
	}
	if arena == nil {
		return p
	}
	for _, rec := range arena.Records() {
		snap := rec.Snapshot()
		if snap.Status == task.SegmentFailed {
			p.FailedSegments++
		}
		p.Segments = append(p.Segments, SegmentProgress{
			Index:          snap.SegmentIndex,
			Status:         snap.Status,
			SubtitleCount:  snap.SubtitleCount,
			CharacterCount: snap.CharacterCount,
			RetryCount:     snap.RetryCount,
			ErrorMessage:   snap.ErrorMessage,
		})
	}
	return p
}
