package httpapi

import (
	"context"
	"net/http"
	"time"

	"subweave/internal/notify"
	"subweave/internal/pipeline"
	"subweave/internal/task"
)

// taskManager is the slice of the pipeline manager the API serves.
type taskManager interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (*task.Task, error)
	Get(id string) (*task.Task, bool)
	List() []*task.Task
	Progress(id string) (pipeline.Progress, bool)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// notificationStore reads and acknowledges persisted notifications.
type notificationStore interface {
	ListNotifications(ctx context.Context, taskID string) ([]notify.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
}

type Server struct {
	manager       taskManager
	notifications notificationStore

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithNotificationStore enables the notification endpoints.
func WithNotificationStore(store notificationStore) Option {
	return func(s *Server) {
		s.notifications = store
	}
}

func NewServer(manager taskManager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/stream", s.handleTaskStream)
	s.mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	s.mux.HandleFunc("/api/notifications", s.handleNotifications)
	s.mux.HandleFunc("/api/notifications/", s.handleNotificationRead)
}
