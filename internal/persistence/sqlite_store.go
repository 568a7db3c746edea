package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subweave/internal/notify"
	"subweave/internal/subtitle"
	"subweave/internal/task"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) UpsertTask(ctx context.Context, t *task.Task) error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	configJSON, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	keywordsJSON, err := json.Marshal(t.UserKeywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	missingJSON, err := json.Marshal(t.MissingSegments)
	if err != nil {
		return fmt.Errorf("marshal missing segments: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO translation_tasks (
			id, video_id, video_title, subtitle_path, output_path, config_json, user_keywords_json,
			status, paused_from, current_phase,
			total_segments, completed_segments, current_segment,
			progress_percentage, estimated_time_remaining_ms, translation_speed,
			error_message, missing_segments_json,
			last_heartbeat, paused_at, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id=excluded.video_id,
			video_title=excluded.video_title,
			subtitle_path=excluded.subtitle_path,
			output_path=excluded.output_path,
			config_json=excluded.config_json,
			user_keywords_json=excluded.user_keywords_json,
			status=excluded.status,
			paused_from=excluded.paused_from,
			current_phase=excluded.current_phase,
			total_segments=excluded.total_segments,
			completed_segments=excluded.completed_segments,
			current_segment=excluded.current_segment,
			progress_percentage=excluded.progress_percentage,
			estimated_time_remaining_ms=excluded.estimated_time_remaining_ms,
			translation_speed=excluded.translation_speed,
			error_message=excluded.error_message,
			missing_segments_json=excluded.missing_segments_json,
			last_heartbeat=excluded.last_heartbeat,
			paused_at=excluded.paused_at,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at,
			updated_at=excluded.updated_at`,
		t.ID,
		t.VideoID,
		t.VideoTitle,
		t.SubtitlePath,
		t.OutputPath,
		string(configJSON),
		string(keywordsJSON),
		string(t.Status),
		string(t.PausedFrom),
		t.CurrentPhase,
		t.TotalSegments,
		t.CompletedSegments,
		t.CurrentSegment,
		t.ProgressPercentage,
		t.EstimatedTimeRemaining.Milliseconds(),
		t.TranslationSpeed,
		t.ErrorMessage,
		string(missingJSON),
		nullableTime(timePtrOrNil(t.LastHeartbeat)),
		nullableTime(t.PausedAt),
		nullableTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) LoadTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, video_id, video_title, subtitle_path, output_path, config_json, user_keywords_json,
			status, paused_from, current_phase,
			total_segments, completed_segments, current_segment,
			progress_percentage, estimated_time_remaining_ms, translation_speed,
			error_message, missing_segments_json,
			last_heartbeat, paused_at, started_at, completed_at, created_at, updated_at
		 FROM translation_tasks
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*task.Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*task.Task, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, video_id, video_title, subtitle_path, output_path, config_json, user_keywords_json,
			status, paused_from, current_phase,
			total_segments, completed_segments, current_segment,
			progress_percentage, estimated_time_remaining_ms, translation_speed,
			error_message, missing_segments_json,
			last_heartbeat, paused_at, started_at, completed_at, created_at, updated_at
		 FROM translation_tasks WHERE id = ?`,
		taskID,
	)
	item, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status, pausedFrom, configJSON, keywordsJSON, missingJSON string
	var etrMs int64
	var lastHeartbeat, pausedAt, startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&t.ID,
		&t.VideoID,
		&t.VideoTitle,
		&t.SubtitlePath,
		&t.OutputPath,
		&configJSON,
		&keywordsJSON,
		&status,
		&pausedFrom,
		&t.CurrentPhase,
		&t.TotalSegments,
		&t.CompletedSegments,
		&t.CurrentSegment,
		&t.ProgressPercentage,
		&etrMs,
		&t.TranslationSpeed,
		&t.ErrorMessage,
		&missingJSON,
		&lastHeartbeat,
		&pausedAt,
		&startedAt,
		&completedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.PausedFrom = task.Status(pausedFrom)
	t.EstimatedTimeRemaining = time.Duration(etrMs) * time.Millisecond
	if err := json.Unmarshal([]byte(configJSON), &t.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &t.UserKeywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(missingJSON), &t.MissingSegments); err != nil {
		return nil, fmt.Errorf("unmarshal missing segments: %w", err)
	}
	if lastHeartbeat.Valid {
		t.LastHeartbeat = lastHeartbeat.Time
	}
	if pausedAt.Valid {
		v := pausedAt.Time
		t.PausedAt = &v
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}

// DeleteTask removes the task and all of its auxiliary rows.
func (s *SQLiteStore) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM segment_tasks WHERE translation_task_id = ?`, taskID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_notifications WHERE translation_task_id = ?`, taskID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM translation_tasks WHERE id = ?`, taskID)
	return err
}

func (s *SQLiteStore) UpsertSegment(ctx context.Context, row SegmentRow) error {
	resultJSON := ""
	if len(row.Result) > 0 {
		payload, err := json.Marshal(row.Result)
		if err != nil {
			return fmt.Errorf("marshal segment result: %w", err)
		}
		resultJSON = string(payload)
	}
	partialJSON := ""
	if len(row.PartialResult) > 0 {
		payload, err := json.Marshal(row.PartialResult)
		if err != nil {
			return fmt.Errorf("marshal partial result: %w", err)
		}
		partialJSON = string(payload)
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO segment_tasks (
			translation_task_id, segment_index, status,
			subtitle_count, character_count, estimated_tokens,
			processing_time_ms, retry_count, error_message,
			result_json, partial_result_json, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(translation_task_id, segment_index) DO UPDATE SET
			status=excluded.status,
			subtitle_count=excluded.subtitle_count,
			character_count=excluded.character_count,
			estimated_tokens=excluded.estimated_tokens,
			processing_time_ms=excluded.processing_time_ms,
			retry_count=excluded.retry_count,
			error_message=excluded.error_message,
			result_json=excluded.result_json,
			partial_result_json=excluded.partial_result_json,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at`,
		row.TranslationTaskID,
		row.SegmentIndex,
		string(row.Status),
		row.SubtitleCount,
		row.CharacterCount,
		row.EstimatedTokens,
		row.ProcessingTimeMs,
		row.RetryCount,
		row.ErrorMessage,
		resultJSON,
		partialJSON,
		nullableTime(row.StartedAt),
		nullableTime(row.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) LoadSegments(ctx context.Context, taskID string) ([]SegmentRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT translation_task_id, segment_index, status,
			subtitle_count, character_count, estimated_tokens,
			processing_time_ms, retry_count, error_message,
			result_json, partial_result_json, started_at, completed_at
		 FROM segment_tasks
		 WHERE translation_task_id = ?
		 ORDER BY segment_index ASC`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SegmentRow, 0)
	for rows.Next() {
		var row SegmentRow
		var status, resultJSON, partialJSON string
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&row.TranslationTaskID,
			&row.SegmentIndex,
			&status,
			&row.SubtitleCount,
			&row.CharacterCount,
			&row.EstimatedTokens,
			&row.ProcessingTimeMs,
			&row.RetryCount,
			&row.ErrorMessage,
			&resultJSON,
			&partialJSON,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		row.Status = task.SegmentStatus(status)
		if resultJSON != "" {
			if err := json.Unmarshal([]byte(resultJSON), &row.Result); err != nil {
				return nil, fmt.Errorf("unmarshal segment result: %w", err)
			}
		}
		if partialJSON != "" {
			if err := json.Unmarshal([]byte(partialJSON), &row.PartialResult); err != nil {
				return nil, fmt.Errorf("unmarshal partial result: %w", err)
			}
		}
		if startedAt.Valid {
			v := startedAt.Time
			row.StartedAt = &v
		}
		if completedAt.Valid {
			v := completedAt.Time
			row.CompletedAt = &v
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteSegments(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM segment_tasks WHERE translation_task_id = ?`, taskID)
	return err
}

func (s *SQLiteStore) InsertNotification(ctx context.Context, n *notify.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is nil")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO task_notifications (translation_task_id, type, title, message, is_read, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.TranslationTaskID,
		string(n.Type),
		n.Title,
		n.Message,
		boolToInt(n.IsRead),
		n.SentAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		n.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, taskID string) ([]notify.Notification, error) {
	query := `SELECT id, translation_task_id, type, title, message, is_read, sent_at
		 FROM task_notifications`
	args := []any{}
	if taskID != "" {
		query += ` WHERE translation_task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY sent_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]notify.Notification, 0)
	for rows.Next() {
		var n notify.Notification
		var typ string
		var isRead int
		if err := rows.Scan(&n.ID, &n.TranslationTaskID, &typ, &n.Title, &n.Message, &isRead, &n.SentAt); err != nil {
			return nil, err
		}
		n.Type = notify.Type(typ)
		n.IsRead = isRead != 0
		ret = append(ret, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE task_notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}

// GetCache looks up a cached segment translation. A hit increments the
// access count and refreshes the access timestamp.
func (s *SQLiteStore) GetCache(ctx context.Context, contentHash, configFingerprint string) ([]subtitle.Entry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT payload_json FROM segment_cache
		 WHERE content_hash = ? AND config_fingerprint = ?`,
		contentHash, configFingerprint,
	)
	var payloadJSON string
	if err := row.Scan(&payloadJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entries []subtitle.Entry
	if err := json.Unmarshal([]byte(payloadJSON), &entries); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache payload: %w", err)
	}

	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE segment_cache SET access_count = access_count + 1, last_accessed_at = ?
		 WHERE content_hash = ? AND config_fingerprint = ?`,
		time.Now().UTC(), contentHash, configFingerprint,
	); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// PutCache stores a segment translation. Repeated stores with the same
// key overwrite the payload and keep the access count.
func (s *SQLiteStore) PutCache(ctx context.Context, contentHash, configFingerprint string, entries []subtitle.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO segment_cache (content_hash, config_fingerprint, payload_json, access_count, created_at, last_accessed_at)
		 VALUES (?, ?, ?, 0, ?, ?)
		 ON CONFLICT(content_hash, config_fingerprint) DO UPDATE SET
			payload_json=excluded.payload_json,
			last_accessed_at=excluded.last_accessed_at`,
		contentHash, configFingerprint, string(payload), now, now,
	)
	return err
}

// CacheStats returns the access count and last access time for a key.
func (s *SQLiteStore) CacheStats(ctx context.Context, contentHash, configFingerprint string) (int, time.Time, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT access_count, last_accessed_at FROM segment_cache
		 WHERE content_hash = ? AND config_fingerprint = ?`,
		contentHash, configFingerprint,
	)
	var count int
	var at time.Time
	if err := row.Scan(&count, &at); err != nil {
		return 0, time.Time{}, err
	}
	return count, at, nil
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtrOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
