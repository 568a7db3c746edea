package notify

import (
	"context"
	"fmt"
	"time"

	"subweave/pkg/log"
)

// Store persists notification records.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) error
}

// Sink receives notifications for display or forwarding. Delivery is
// fire-and-forget from the pipeline's perspective.
type Sink interface {
	Deliver(n Notification)
}

// Emitter creates notification records for task state transitions and
// hands them to the sink.
type Emitter struct {
	store Store
	sink  Sink
}

func NewEmitter(store Store, sink Sink) *Emitter {
	return &Emitter{store: store, sink: sink}
}

// Emit persists the notification and forwards it to the sink. Failures
// are logged and swallowed: notifications never break the pipeline.
func (e *Emitter) Emit(ctx context.Context, taskID string, typ Type, title, message string) {
	n := Notification{
		TranslationTaskID: taskID,
		Type:              typ,
		Title:             title,
		Message:           message,
		SentAt:            time.Now(),
	}

	if e.store != nil {
		if err := e.store.InsertNotification(ctx, &n); err != nil {
			log.Error("Failed to persist notification for task %s: %v", taskID, err)
		}
	}
	if e.sink != nil {
		go e.sink.Deliver(n)
	}
}

// Progress emits a progress notification.
func (e *Emitter) Progress(ctx context.Context, taskID string, pct int) {
	e.Emit(ctx, taskID, TypeProgress, "Translation progress",
		fmt.Sprintf("Translation is %d%% complete", pct))
}

// Completed emits a completion notification.
func (e *Emitter) Completed(ctx context.Context, taskID string) {
	e.Emit(ctx, taskID, TypeCompleted, "Translation completed",
		"The subtitle track was translated successfully")
}

// Failed emits a failure notification carrying the error message.
func (e *Emitter) Failed(ctx context.Context, taskID string, errMsg string) {
	e.Emit(ctx, taskID, TypeFailed, "Translation failed", errMsg)
}

// Paused emits a pause notification.
func (e *Emitter) Paused(ctx context.Context, taskID string) {
	e.Emit(ctx, taskID, TypePaused, "Translation paused",
		"The translation task was paused and can be resumed")
}
