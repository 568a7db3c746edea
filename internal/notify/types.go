package notify

import "time"

// Type classifies a task notification.
type Type string

const (
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypePaused    Type = "paused"
)

// Notification is an immutable event record raised by the pipeline.
// Only the IsRead flag is ever mutated, and only by the consumer.
type Notification struct {
	ID                int64     `json:"id"`
	TranslationTaskID string    `json:"translation_task_id"`
	Type              Type      `json:"type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	IsRead            bool      `json:"is_read"`
	SentAt            time.Time `json:"sent_at"`
}
