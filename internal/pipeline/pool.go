package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"subweave/internal/cache"
	"subweave/internal/fingerprint"
	"subweave/internal/llm"
	"subweave/internal/subtitle"
	"subweave/internal/task"
	"subweave/pkg/log"
)

// PoolConfig bounds the segment translation workers and their retry
// behaviour.
type PoolConfig struct {
	Workers        int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	AttemptTimeout time.Duration
}

func (c PoolConfig) normalized() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 2 * time.Minute
	}
	return c
}

// SegmentRequest carries the per-task context every segment attempt
// needs.
type SegmentRequest struct {
	Keywords       []string
	Config         task.TranslationConfig
	SourceLanguage string
	TargetLanguage string

	// ShouldStop is polled before claiming a new segment; pause and
	// stall detection stop scheduling without killing in-flight calls.
	ShouldStop func() bool
	// Discard is checked after an attempt finishes; a cancelled task
	// discards results and must not pollute the cache.
	Discard func() bool
	// OnUpdate is invoked after every segment state change.
	OnUpdate func(rec *task.SegmentRecord)
}

func (r SegmentRequest) stopped() bool {
	return r.ShouldStop != nil && r.ShouldStop()
}

func (r SegmentRequest) discarded() bool {
	return r.Discard != nil && r.Discard()
}

func (r SegmentRequest) update(rec *task.SegmentRecord) {
	if r.OnUpdate != nil {
		r.OnUpdate(rec)
	}
}

// Pool translates the segments of one arena with a bounded worker set.
// A process-wide weighted semaphore caps concurrent LLM calls across
// all tasks, and a singleflight group collapses concurrent identical
// segment translations.
type Pool struct {
	transport llm.Translator
	cache     *cache.Store
	global    *semaphore.Weighted
	flight    singleflight.Group
	cfg       PoolConfig
}

func NewPool(transport llm.Translator, cacheStore *cache.Store, global *semaphore.Weighted, cfg PoolConfig) *Pool {
	return &Pool{
		transport: transport,
		cache:     cacheStore,
		global:    global,
		cfg:       cfg.normalized(),
	}
}

// Translate drives the arena until every segment is terminal or the
// task is stopped. It only returns an error when the context is
// cancelled; per-segment failures are recorded in the arena.
func (p *Pool) Translate(ctx context.Context, arena *task.Arena, req SegmentRequest) error {
	workers := p.cfg.Workers
	if n := arena.Len(); n < workers {
		workers = n
	}

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if req.stopped() {
					return nil
				}
				rec, ok := arena.ClaimNext()
				if !ok {
					return nil
				}
				if err := p.processSegment(ctx, rec, req); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// processSegment runs the attempt/backoff loop for one claimed record.
func (p *Pool) processSegment(ctx context.Context, rec *task.SegmentRecord, req SegmentRequest) error {
	for {
		err := p.attempt(ctx, rec, req)
		if err == nil {
			req.update(rec)
			return nil
		}
		if ctx.Err() != nil {
			// cancellation is not an attempt; the claim simply dies with the run
			return ctx.Err()
		}

		if req.discarded() {
			// cancelled; the finished attempt was dropped and retrying it
			// would only burn more LLM calls
			rec.FailTerminal(err.Error())
			req.update(rec)
			return nil
		}

		if !Retryable(err) {
			rec.FailTerminal(err.Error())
			req.update(rec)
			return nil
		}

		retry := rec.FailAttempt(err.Error(), nil, p.cfg.MaxRetries)
		req.update(rec)
		if !retry {
			log.Error("Segment %d of task %s failed terminally after %d attempts: %v",
				rec.Index, rec.TaskID, rec.RetryCount(), err)
			return nil
		}

		log.Warn("Segment %d of task %s attempt %d failed, backing off: %v",
			rec.Index, rec.TaskID, rec.RetryCount(), err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(p.cfg.BackoffBase, p.cfg.BackoffCap, rec.RetryCount())):
		}
		if req.stopped() {
			return nil
		}
		if !rec.Reclaim() {
			// the record left retrying while we slept
			return nil
		}
	}
}

// attempt performs a single translation attempt: cache first, then one
// LLM call with strict entry-count validation.
func (p *Pool) attempt(ctx context.Context, rec *task.SegmentRecord, req SegmentRequest) error {
	input := rec.Input()
	contentHash := fingerprint.Content(input)
	configFP := fingerprint.Config(req.Config)

	if cached, ok := p.cache.Lookup(ctx, contentHash, configFP); ok && len(cached) == len(input) {
		rec.Complete(cached, 0)
		return nil
	}

	if p.global != nil {
		if err := p.global.Acquire(ctx, 1); err != nil {
			return NewErrorWithCause(ErrTransport, "waiting for llm slot", err)
		}
		defer p.global.Release(1)
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	flightKey := contentHash + "|" + configFP
	v, err, _ := p.flight.Do(flightKey, func() (any, error) {
		return p.transport.Translate(attemptCtx, llm.TranslateRequest{
			Entries:        input,
			Keywords:       req.Keywords,
			SourceLanguage: req.SourceLanguage,
			TargetLanguage: req.TargetLanguage,
			Config:         req.Config,
		})
	})
	if err != nil {
		if KindOf(err) != ErrUnknown {
			// the transport already classified it
			return err
		}
		// timeouts count against the retry budget like any transport error
		return NewErrorWithCause(ErrTransport, fmt.Sprintf("segment %d translation call failed", rec.Index), err)
	}
	texts := v.([]string)

	if len(texts) != len(input) {
		return NewError(ErrAlignment, fmt.Sprintf(
			"segment %d alignment mismatch: got %d entries, want %d", rec.Index, len(texts), len(input)))
	}

	result := make([]subtitle.Entry, len(input))
	for i, entry := range input {
		entry.TranslatedText = texts[i]
		result[i] = entry
	}

	if req.discarded() {
		// cancelled runs must not pollute the cache
		return NewError(ErrTransport, "task cancelled, discarding segment result")
	}

	p.cache.Put(ctx, contentHash, configFP, result)
	rec.Complete(result, time.Since(start))
	return nil
}

// backoff returns the exponential delay before the given attempt,
// capped.
func backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}
