package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"subweave/internal/cache"
	"subweave/internal/keywords"
	"subweave/internal/llm"
	"subweave/internal/notify"
	"subweave/internal/persistence"
	"subweave/internal/segment"
	"subweave/internal/stitch"
	"subweave/internal/style"
	"subweave/internal/subtitle"
	"subweave/internal/task"
	"subweave/pkg/log"
)

// Store is the persistence surface the manager needs. SQLiteStore
// implements it; tests substitute lighter fakes.
type Store interface {
	UpsertTask(ctx context.Context, t *task.Task) error
	LoadTasks(ctx context.Context) ([]*task.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	UpsertSegment(ctx context.Context, row persistence.SegmentRow) error
	LoadSegments(ctx context.Context, taskID string) ([]persistence.SegmentRow, error)
	DeleteSegments(ctx context.Context, taskID string) error
}

// Config tunes the pipeline manager.
type Config struct {
	QueueSize         int
	RunnerCount       int
	SegmentBudget     segment.Budget
	Pool              PoolConfig
	MaxConcurrentLLM  int64
	HeartbeatInterval time.Duration
	Style             style.Options
	TargetLanguage    string
	// ContextEntries is how many leading entries feed keyword extraction.
	ContextEntries int
}

func (c Config) normalized() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RunnerCount <= 0 {
		c.RunnerCount = 2
	}
	if c.MaxConcurrentLLM <= 0 {
		c.MaxConcurrentLLM = 6
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = "zh-TW"
	}
	if c.ContextEntries <= 0 {
		c.ContextEntries = 20
	}
	return c
}

// control carries the cooperative signals of one running task. stop
// lets pause, cancel and stall detection drain the workers without
// killing in-flight calls; discard marks a cancelled run whose results
// must not be kept or cached.
type control struct {
	stop    atomic.Bool
	discard atomic.Bool
}

// Manager owns every translation task: the queue, the per-task runner
// goroutines, and the in-memory task/arena state hydrated from the
// store on startup.
type Manager struct {
	cfg       Config
	store     Store
	cache     *cache.Store
	pool      *Pool
	extractor *keywords.Extractor
	emitter   *notify.Emitter
	writer    subtitle.Writer

	mu       sync.Mutex
	tasks    map[string]*task.Task
	arenas   map[string]*task.Arena
	controls map[string]*control
	notified map[string]int // last progress percentage notified per task

	pendingIDs chan string
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewManager(cfg Config, store Store, cacheStore *cache.Store, transport llm.Translator, extractor *keywords.Extractor, emitter *notify.Emitter) *Manager {
	cfg = cfg.normalized()
	return &Manager{
		cfg:        cfg,
		store:      store,
		cache:      cacheStore,
		pool:       NewPool(transport, cacheStore, semaphore.NewWeighted(cfg.MaxConcurrentLLM), cfg.Pool),
		extractor:  extractor,
		emitter:    emitter,
		writer:     subtitle.NewWriter(),
		tasks:      make(map[string]*task.Task),
		arenas:     make(map[string]*task.Arena),
		controls:   make(map[string]*control),
		notified:   make(map[string]int),
		pendingIDs: make(chan string, cfg.QueueSize),
	}
}

// Start hydrates persisted tasks and launches the runner goroutines.
// Tasks that were mid-flight when the previous process died are
// re-queued; their completed segments are restored from the store so
// translation picks up where it left off.
func (m *Manager) Start(ctx context.Context) error {
	m.baseCtx, m.baseCancel = context.WithCancel(ctx)

	persisted, err := m.store.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("hydrate tasks: %w", err)
	}

	var requeue []string
	m.mu.Lock()
	for _, t := range persisted {
		if t.Status.Active() {
			// the previous run died mid-phase; not a user transition
			t.Status = task.StatusQueued
			t.CurrentPhase = "Waiting in queue"
		}
		m.tasks[t.ID] = t
		if t.Status == task.StatusQueued {
			requeue = append(requeue, t.ID)
		}
	}
	m.mu.Unlock()

	for i := 0; i < m.cfg.RunnerCount; i++ {
		m.wg.Add(1)
		go m.runnerLoop()
	}

	for _, id := range requeue {
		m.enqueue(id)
	}
	log.Info("Pipeline manager started with %d runners, %d tasks hydrated", m.cfg.RunnerCount, len(persisted))
	return nil
}

// Stop drains the runners. In-flight tasks are interrupted; they will
// be re-queued on the next Start.
func (m *Manager) Stop() {
	m.baseCancel()
	close(m.pendingIDs)
	m.wg.Wait()
}

func (m *Manager) enqueue(id string) {
	select {
	case m.pendingIDs <- id:
	default:
		log.Warn("Task queue full, dropping enqueue of %s", id)
	}
}

// SubmitRequest describes a new translation task.
type SubmitRequest struct {
	VideoID      string
	VideoTitle   string
	SubtitlePath string
	Config       task.TranslationConfig
	UserKeywords []string
}

// Submit registers a new task and queues it for processing.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*task.Task, error) {
	if req.SubtitlePath == "" {
		return nil, fmt.Errorf("subtitle path is required")
	}

	now := time.Now()
	t := &task.Task{
		ID:           uuid.NewString(),
		VideoID:      req.VideoID,
		VideoTitle:   req.VideoTitle,
		SubtitlePath: req.SubtitlePath,
		Config:       req.Config,
		UserKeywords: append([]string(nil), req.UserKeywords...),
		Status:       task.StatusQueued,
		CurrentPhase: "Waiting in queue",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.UpsertTask(ctx, t); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	m.enqueue(t.ID)
	log.Info("Task %s submitted for video %s", t.ID, t.VideoID)
	return t.Clone(), nil
}

// Get returns a copy of the task.
func (m *Manager) Get(id string) (*task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// List returns copies of all tasks, newest first.
func (m *Manager) List() []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Progress builds a point-in-time progress report for one task.
func (m *Manager) Progress(id string) (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Progress{}, false
	}
	return buildProgress(t, m.arenas[id]), true
}

// Pause stops scheduling new segments for a running task. In-flight
// segment calls finish and their results are kept.
func (m *Manager) Pause(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if err := t.Transition(task.StatusPaused); err != nil {
		m.mu.Unlock()
		return err
	}
	if ctrl := m.controls[id]; ctrl != nil {
		ctrl.stop.Store(true)
	}
	snap := t.Clone()
	m.mu.Unlock()

	m.persistTask(ctx, snap)
	m.emitter.Paused(ctx, id)
	log.Info("Task %s paused from %s", id, snap.PausedFrom)
	return nil
}

// Resume re-queues a paused task. Completed segments are restored from
// the store, so only unfinished work is re-translated.
func (m *Manager) Resume(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status != task.StatusPaused {
		m.mu.Unlock()
		return &task.ErrIllegalTransition{From: string(t.Status), To: string(task.StatusQueued)}
	}
	target := t.ResumeTarget()
	if err := t.Transition(target); err != nil {
		m.mu.Unlock()
		return err
	}
	snap := t.Clone()
	m.mu.Unlock()

	m.persistTask(ctx, snap)
	m.enqueue(id)
	log.Info("Task %s resumed to %s", id, target)
	return nil
}

// Cancel stops a task. In-flight segment calls are allowed to finish,
// but their results are discarded and never cached.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if err := t.Transition(task.StatusCancelled); err != nil {
		m.mu.Unlock()
		return err
	}
	if ctrl := m.controls[id]; ctrl != nil {
		ctrl.discard.Store(true)
		ctrl.stop.Store(true)
	}
	snap := t.Clone()
	m.mu.Unlock()

	m.persistTask(ctx, snap)
	log.Info("Task %s cancelled", id)
	return nil
}

// Restart resets a terminal task to queued and re-runs it from
// scratch, dropping persisted segment results.
func (m *Manager) Restart(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if !t.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("task %s is %s, only finished tasks can be restarted", id, t.Status)
	}
	// restart is a reset, not a lifecycle transition
	t.Status = task.StatusQueued
	t.CurrentPhase = "Waiting in queue"
	t.ProgressPercentage = 0
	t.CompletedSegments = 0
	t.TotalSegments = 0
	t.CurrentSegment = 0
	t.TranslationSpeed = 0
	t.EstimatedTimeRemaining = 0
	t.ErrorMessage = ""
	t.MissingSegments = nil
	t.PausedFrom = ""
	t.PausedAt = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	t.LastHeartbeat = time.Time{}
	t.UpdatedAt = time.Now()
	delete(m.arenas, id)
	delete(m.notified, id)
	snap := t.Clone()
	m.mu.Unlock()

	if err := m.store.DeleteSegments(ctx, id); err != nil {
		log.Warn("Failed to drop segments of restarted task %s: %v", id, err)
	}
	m.persistTask(ctx, snap)
	m.enqueue(id)
	log.Info("Task %s restarted", id)
	return nil
}

// Delete removes a finished task and all its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	if !t.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("task %s is %s, only finished tasks can be deleted", id, t.Status)
	}
	delete(m.tasks, id)
	delete(m.arenas, id)
	delete(m.controls, id)
	delete(m.notified, id)
	m.mu.Unlock()

	if err := m.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	log.Info("Task %s deleted", id)
	return nil
}

// ActiveTasks returns copies of tasks currently in an active phase.
func (m *Manager) ActiveTasks() []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Task
	for _, t := range m.tasks {
		if t.Status.Active() {
			out = append(out, t.Clone())
		}
	}
	return out
}

// MarkStalled fails a task whose heartbeat went silent. The runner is
// asked to stop cooperatively; whatever it still produces is discarded
// by the terminal status.
func (m *Manager) MarkStalled(taskID string, message string) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err := t.Transition(task.StatusFailed); err != nil {
		m.mu.Unlock()
		return
	}
	t.ErrorMessage = message
	if ctrl := m.controls[taskID]; ctrl != nil {
		ctrl.stop.Store(true)
	}
	snap := t.Clone()
	m.mu.Unlock()

	ctx := context.Background()
	m.persistTask(ctx, snap)
	m.emitter.Failed(ctx, taskID, message)
	log.Error("Task %s marked stalled: %s", taskID, message)
}

func (m *Manager) runnerLoop() {
	defer m.wg.Done()
	for id := range m.pendingIDs {
		if m.baseCtx.Err() != nil {
			return
		}
		m.runTask(id)
	}
}

var phaseRank = map[task.Status]int{
	task.StatusQueued:      0,
	task.StatusSegmenting:  1,
	task.StatusTranslating: 2,
	task.StatusStitching:   3,
	task.StatusOptimizing:  4,
}

// errRunStopped aborts the phase sequence without failing the task;
// the terminal or paused status was already set by the action.
var errRunStopped = fmt.Errorf("task run stopped")

// ensurePhase advances the task to the given phase unless it is
// already there or beyond, which happens when a paused task resumed
// into a later phase.
func (m *Manager) ensurePhase(ctx context.Context, t *task.Task, next task.Status) error {
	m.mu.Lock()
	if t.Status == task.StatusPaused || t.Status.Terminal() {
		m.mu.Unlock()
		return errRunStopped
	}
	if phaseRank[t.Status] >= phaseRank[next] {
		m.mu.Unlock()
		return nil
	}
	if err := t.Transition(next); err != nil {
		m.mu.Unlock()
		return err
	}
	snap := t.Clone()
	m.mu.Unlock()
	m.persistTask(ctx, snap)
	return nil
}

func (m *Manager) runTask(id string) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if t.Status.Terminal() || t.Status == task.StatusPaused {
		m.mu.Unlock()
		return
	}
	if _, running := m.controls[id]; running {
		// a stale queue entry for a task another runner already owns
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(m.baseCtx)
	ctrl := &control{}
	m.controls[id] = ctrl
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.controls, id)
		m.mu.Unlock()
	}()

	stopHeartbeat := m.startHeartbeat(runCtx, t)
	defer stopHeartbeat()

	if err := m.process(runCtx, t, ctrl); err != nil && err != errRunStopped {
		if m.baseCtx.Err() != nil && !ctrl.discard.Load() {
			// process shutdown, not a task failure; leave the task queued
			// so the next Start picks it back up
			m.requeueInterrupted(t)
			return
		}
		m.failTask(t, err.Error())
	}
}

// requeueInterrupted puts a task interrupted by Stop back into queued
// and persists it. It is not re-enqueued in this process; hydration on
// the next Start does that.
func (m *Manager) requeueInterrupted(t *task.Task) {
	m.mu.Lock()
	if t.Status.Terminal() || t.Status == task.StatusPaused {
		m.mu.Unlock()
		return
	}
	t.Status = task.StatusQueued
	t.CurrentPhase = "Waiting in queue"
	t.UpdatedAt = time.Now()
	snap := t.Clone()
	m.mu.Unlock()

	m.persistTask(context.Background(), snap)
	log.Info("Task %s interrupted by shutdown, re-queued for next start", t.ID)
}

// process drives one task through the full phase sequence. It returns
// an error only for failures that should mark the task failed; pause
// and cancel return nil after the status was already set by the action.
func (m *Manager) process(ctx context.Context, t *task.Task, ctrl *control) error {
	if err := m.ensurePhase(ctx, t, task.StatusSegmenting); err != nil {
		return err
	}

	track, err := subtitle.NewReader(t.SubtitlePath).Read()
	if err != nil {
		return fmt.Errorf("read subtitle file: %w", err)
	}

	if len(track.Entries) == 0 {
		// nothing to translate, but an empty output is still produced
		out := outputPath(t.SubtitlePath, m.cfg.TargetLanguage)
		if err := m.writer.Write(out, track); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		m.completeTask(ctx, t, out)
		return nil
	}

	segments := segment.Split(track.Entries, m.cfg.SegmentBudget)
	arena := m.buildArena(ctx, t, segments)

	kw := m.extractKeywords(ctx, t, track)

	if err := m.ensurePhase(ctx, t, task.StatusTranslating); err != nil {
		return err
	}

	req := SegmentRequest{
		Keywords:       kw,
		Config:         t.Config,
		SourceLanguage: track.Language.String(),
		TargetLanguage: m.cfg.TargetLanguage,
		ShouldStop:     func() bool { return ctrl.stop.Load() },
		Discard:        func() bool { return ctrl.discard.Load() },
		OnUpdate:       func(rec *task.SegmentRecord) { m.onSegmentUpdate(ctx, t, arena, rec) },
	}
	if err := m.pool.Translate(ctx, arena, req); err != nil {
		// context cancellation, i.e. process shutdown
		if ctrl.discard.Load() {
			return nil
		}
		return fmt.Errorf("translation interrupted: %w", err)
	}
	if ctrl.stop.Load() {
		// paused or stalled; the status was already set by the action
		return nil
	}

	if err := m.ensurePhase(ctx, t, task.StatusStitching); err != nil {
		return err
	}
	stitched, err := m.stitchArena(arena, segments)
	if err != nil {
		return fmt.Errorf("stitch segments: %w", err)
	}

	if err := m.ensurePhase(ctx, t, task.StatusOptimizing); err != nil {
		return err
	}
	opts := m.cfg.Style
	opts.MergeEnabled = t.Config.NaturalTone
	opts.SentenceMergeEnabled = t.Config.SubtitleTiming
	entries := style.NewAdjuster(opts).Adjust(stitched.Entries)

	out := outputPath(t.SubtitlePath, m.cfg.TargetLanguage)
	outTrack := &subtitle.Track{Entries: entries, Format: track.Format, Language: track.Language}
	if err := m.writer.Write(out, outTrack); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if stitched.Partial() {
		m.mu.Lock()
		t.OutputPath = out
		t.MissingSegments = stitched.MissingSegments
		m.mu.Unlock()
		return fmt.Errorf("segments %s failed after retries, wrote partial output", joinInts(stitched.MissingSegments))
	}

	m.completeTask(ctx, t, out)
	return nil
}

// buildArena segments the task and restores previously completed
// segments so a resumed run does not retranslate them.
func (m *Manager) buildArena(ctx context.Context, t *task.Task, segments []segment.Segment) *task.Arena {
	inputs := make([][]subtitle.Entry, len(segments))
	for i, seg := range segments {
		inputs[i] = seg.Entries
	}
	arena := task.NewArena(t.ID, inputs)

	rows, err := m.store.LoadSegments(ctx, t.ID)
	if err != nil {
		log.Warn("Failed to load persisted segments of task %s: %v", t.ID, err)
		rows = nil
	}
	restored := 0
	for _, row := range rows {
		if row.Status == task.SegmentCompleted && len(row.Result) > 0 {
			arena.Restore(row.SegmentIndex, row.Result, row.RetryCount)
			restored++
		}
	}

	m.mu.Lock()
	m.arenas[t.ID] = arena
	t.TotalSegments = arena.Len()
	t.CompletedSegments = restored
	m.mu.Unlock()

	if restored > 0 {
		log.Info("Task %s restored %d/%d completed segments", t.ID, restored, arena.Len())
	}
	return arena
}

func (m *Manager) extractKeywords(ctx context.Context, t *task.Task, track *subtitle.Track) []string {
	n := m.cfg.ContextEntries
	if n > len(track.Entries) {
		n = len(track.Entries)
	}
	var sb strings.Builder
	for _, e := range track.Entries[:n] {
		sb.WriteString(e.Text)
		sb.WriteString("\n")
	}
	title := t.VideoTitle
	if title == "" {
		title = t.VideoID
	}
	set := m.extractor.Extract(ctx, title, sb.String(), t.UserKeywords)
	return set.Final
}

// onSegmentUpdate persists the segment snapshot and recomputes the
// task-level progress after every segment state change.
func (m *Manager) onSegmentUpdate(ctx context.Context, t *task.Task, arena *task.Arena, rec *task.SegmentRecord) {
	snap := rec.Snapshot()

	row := persistence.SegmentRow{SegmentTask: snap}
	if snap.Status == task.SegmentCompleted {
		if res, ok := rec.Result(); ok {
			row.Result = res
		}
	}
	if err := m.store.UpsertSegment(ctx, row); err != nil {
		log.Warn("Failed to persist segment %d of task %s: %v", snap.SegmentIndex, t.ID, err)
	}

	m.mu.Lock()
	counts := arena.CountByStatus()
	completed := counts[task.SegmentCompleted]
	remaining := 0
	for _, r := range arena.Records() {
		if r.Status() != task.SegmentCompleted {
			remaining += r.Snapshot().SubtitleCount
		}
	}
	if snap.Status == task.SegmentCompleted && snap.ProcessingTimeMs > 0 {
		t.ObserveSpeed(snap.SubtitleCount, time.Duration(snap.ProcessingTimeMs)*time.Millisecond)
	}
	t.CurrentSegment = snap.SegmentIndex
	t.RecordSegmentDone(completed, remaining)
	pct := t.ProgressPercentage
	last := m.notified[t.ID]
	shouldNotify := pct >= last+10 && pct < 100
	if shouldNotify {
		m.notified[t.ID] = pct
	}
	snapTask := t.Clone()
	m.mu.Unlock()

	m.persistTask(ctx, snapTask)
	if shouldNotify {
		m.emitter.Progress(ctx, t.ID, pct)
	}
}

// stitchArena assembles the stitcher input: one result per segment
// index, empty entries marking segments that produced nothing.
func (m *Manager) stitchArena(arena *task.Arena, segments []segment.Segment) (stitch.Result, error) {
	results := make([]stitch.SegmentResult, arena.Len())
	for i, rec := range arena.Records() {
		res, _ := rec.Result()
		results[i] = stitch.SegmentResult{
			Index:         rec.Index,
			Entries:       res,
			ExpectedCount: len(rec.Input()),
			OriginalStart: segments[i].Start(),
			OriginalEnd:   segments[i].End(),
		}
	}
	return stitch.Stitch(results)
}

func (m *Manager) completeTask(ctx context.Context, t *task.Task, outputPath string) {
	m.mu.Lock()
	t.OutputPath = outputPath
	if err := t.Transition(task.StatusCompleted); err != nil {
		m.mu.Unlock()
		log.Error("Task %s could not complete: %v", t.ID, err)
		return
	}
	snap := t.Clone()
	m.mu.Unlock()

	m.persistTask(ctx, snap)
	m.emitter.Completed(ctx, t.ID)
	log.Info("Task %s completed, output at %s", t.ID, outputPath)
}

func (m *Manager) failTask(t *task.Task, message string) {
	m.mu.Lock()
	if t.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	if err := t.Transition(task.StatusFailed); err != nil {
		m.mu.Unlock()
		return
	}
	t.ErrorMessage = message
	snap := t.Clone()
	m.mu.Unlock()

	ctx := context.Background()
	m.persistTask(ctx, snap)
	m.emitter.Failed(ctx, t.ID, message)
	log.Error("Task %s failed: %s", t.ID, message)
}

// startHeartbeat stamps the task's liveness signal on a fixed interval
// until the returned stop function is called.
func (m *Manager) startHeartbeat(ctx context.Context, t *task.Task) func() {
	stop := make(chan struct{})
	m.mu.Lock()
	t.Heartbeat(time.Now())
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case now := <-ticker.C:
				m.mu.Lock()
				active := t.Status.Active()
				if active {
					t.Heartbeat(now)
				}
				snap := t.Clone()
				m.mu.Unlock()
				// a tick can race shutdown; never overwrite the
				// re-queued snapshot with a stale active one
				if active && ctx.Err() == nil {
					m.persistTask(ctx, snap)
				}
			}
		}
	}()
	return func() { close(stop) }
}

func (m *Manager) persistTask(ctx context.Context, t *task.Task) {
	if err := m.store.UpsertTask(ctx, t); err != nil {
		log.Warn("Failed to persist task %s: %v", t.ID, err)
	}
}

// outputPath derives the translated file path from the source path,
// e.g. video.srt -> video.zh-TW.srt.
func outputPath(sourcePath, targetLanguage string) string {
	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(sourcePath, ext)
	return fmt.Sprintf("%s.%s%s", base, targetLanguage, ext)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
