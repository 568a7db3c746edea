package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"subweave/internal/pipeline"
	"subweave/internal/task"
)

type submitTaskRequest struct {
	VideoID      string                 `json:"video_id"`
	VideoTitle   string                 `json:"video_title"`
	SubtitlePath string                 `json:"subtitle_path"`
	Config       task.TranslationConfig `json:"config"`
	UserKeywords []string               `json:"user_keywords"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.manager.List())
	case http.MethodPost:
		var req submitTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.SubtitlePath == "" {
			writeError(w, http.StatusBadRequest, "subtitle_path is required")
			return
		}
		t, err := s.manager.Submit(r.Context(), pipeline.SubmitRequest{
			VideoID:      req.VideoID,
			VideoTitle:   req.VideoTitle,
			SubtitlePath: req.SubtitlePath,
			Config:       req.Config,
			UserKeywords: req.UserKeywords,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, t)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTaskByID dispatches /api/tasks/{id}, /api/tasks/{id}/progress
// and the action endpoints /api/tasks/{id}/{pause|resume|cancel|restart}.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			t, ok := s.manager.Get(id)
			if !ok {
				writeError(w, http.StatusNotFound, "task not found")
				return
			}
			writeJSON(w, http.StatusOK, t)
		case http.MethodDelete:
			if err := s.manager.Delete(r.Context(), id); err != nil {
				writeError(w, statusForActionError(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	action := parts[1]
	if action == "progress" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := s.manager.Progress(id)
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var err error
	switch action {
	case "pause":
		err = s.manager.Pause(r.Context(), id)
	case "resume":
		err = s.manager.Resume(r.Context(), id)
	case "cancel":
		err = s.manager.Cancel(r.Context(), id)
	case "restart":
		err = s.manager.Restart(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, statusForActionError(err), err.Error())
		return
	}
	t, _ := s.manager.Get(id)
	writeJSON(w, http.StatusOK, t)
}

// statusForActionError maps lifecycle violations to 409 and missing
// tasks to 404; everything else is a 500.
func statusForActionError(err error) int {
	var illegal *task.ErrIllegalTransition
	if errors.As(err, &illegal) {
		return http.StatusConflict
	}
	if strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	if strings.Contains(err.Error(), "only finished tasks") {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		writeError(w, http.StatusNotImplemented, "notification store is not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list, err := s.notifications.ListNotifications(r.Context(), r.URL.Query().Get("task"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleNotificationRead acknowledges /api/notifications/{id}/read.
func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if s.notifications == nil {
		writeError(w, http.StatusNotImplemented, "notification store is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	idStr := strings.TrimSuffix(strings.Trim(rest, "/"), "/read")
	if idStr == rest || idStr == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(strings.Trim(idStr, "/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.notifications.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
