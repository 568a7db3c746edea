package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"subweave/internal/cache"
	"subweave/internal/llm"
	"subweave/internal/subtitle"
	"subweave/internal/task"
)

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	// respond overrides the default echo behaviour when set.
	respond func(call int, req llm.TranslateRequest) ([]string, error)
}

func (f *fakeTranslator) Translate(_ context.Context, req llm.TranslateRequest) ([]string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(call, req)
	}
	texts := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		texts[i] = "譯: " + e.Text
	}
	return texts, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testEntries(prefix string, n int) []subtitle.Entry {
	entries := make([]subtitle.Entry, n)
	for i := range entries {
		entries[i] = subtitle.Entry{
			Index: i + 1,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i)*time.Second + 900*time.Millisecond,
			Text:  fmt.Sprintf("%s line %d", prefix, i+1),
		}
	}
	return entries
}

func testPool(transport llm.Translator, store *cache.Store) *Pool {
	return NewPool(transport, store, semaphore.NewWeighted(4), PoolConfig{
		Workers:     2,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})
}

func TestPoolTranslatesAllSegments(t *testing.T) {
	transport := &fakeTranslator{}
	pool := testPool(transport, cache.NewMemory())

	inputs := [][]subtitle.Entry{
		testEntries("a", 3),
		testEntries("b", 2),
		testEntries("c", 4),
	}
	arena := task.NewArena("task-1", inputs)

	err := pool.Translate(context.Background(), arena, SegmentRequest{})
	require.NoError(t, err)
	require.True(t, arena.Done())

	for i, input := range inputs {
		rec, ok := arena.Get(i)
		require.True(t, ok)
		assert.Equal(t, task.SegmentCompleted, rec.Status())
		res, ok := rec.Result()
		require.True(t, ok)
		require.Len(t, res, len(input))
		for j, e := range res {
			assert.Equal(t, "譯: "+input[j].Text, e.TranslatedText)
			assert.Equal(t, input[j].Start, e.Start)
			assert.Equal(t, input[j].End, e.End)
		}
	}
	assert.Equal(t, 3, transport.callCount())
}

func TestPoolSecondRunHitsCacheOnly(t *testing.T) {
	transport := &fakeTranslator{}
	store := cache.NewMemory()
	pool := testPool(transport, store)

	inputs := [][]subtitle.Entry{testEntries("a", 3), testEntries("b", 2)}

	first := task.NewArena("task-1", inputs)
	require.NoError(t, pool.Translate(context.Background(), first, SegmentRequest{}))
	callsAfterFirst := transport.callCount()

	second := task.NewArena("task-2", inputs)
	require.NoError(t, pool.Translate(context.Background(), second, SegmentRequest{}))

	assert.Equal(t, callsAfterFirst, transport.callCount(), "second run must be served from cache")
	require.True(t, second.Done())
	for i := range inputs {
		rec, _ := second.Get(i)
		assert.Equal(t, task.SegmentCompleted, rec.Status())
	}
}

func TestPoolRetriesAlignmentMismatch(t *testing.T) {
	transport := &fakeTranslator{
		respond: func(call int, req llm.TranslateRequest) ([]string, error) {
			if call == 1 {
				// one entry short: alignment failure, retryable
				return make([]string, len(req.Entries)-1), nil
			}
			texts := make([]string, len(req.Entries))
			for i, e := range req.Entries {
				texts[i] = "ok " + e.Text
			}
			return texts, nil
		},
	}
	pool := testPool(transport, cache.NewMemory())
	arena := task.NewArena("task-1", [][]subtitle.Entry{testEntries("a", 3)})

	require.NoError(t, pool.Translate(context.Background(), arena, SegmentRequest{}))

	rec, _ := arena.Get(0)
	assert.Equal(t, task.SegmentCompleted, rec.Status())
	assert.Equal(t, 1, rec.RetryCount(), "one failed attempt before success")
	assert.Equal(t, 2, transport.callCount())
}

func TestPoolExhaustsRetryBudget(t *testing.T) {
	transport := &fakeTranslator{
		respond: func(int, llm.TranslateRequest) ([]string, error) {
			return nil, fmt.Errorf("upstream unavailable")
		},
	}
	pool := testPool(transport, cache.NewMemory())
	arena := task.NewArena("task-1", [][]subtitle.Entry{testEntries("a", 2)})

	require.NoError(t, pool.Translate(context.Background(), arena, SegmentRequest{}))

	rec, _ := arena.Get(0)
	assert.Equal(t, task.SegmentFailed, rec.Status())
	assert.Equal(t, 3, transport.callCount(), "one call per attempt up to the budget")
	snap := rec.Snapshot()
	assert.Contains(t, snap.ErrorMessage, "upstream unavailable")
}

func TestPoolStopsClaimingWhenAsked(t *testing.T) {
	transport := &fakeTranslator{}
	pool := testPool(transport, cache.NewMemory())

	inputs := make([][]subtitle.Entry, 6)
	for i := range inputs {
		inputs[i] = testEntries(fmt.Sprintf("s%d", i), 2)
	}
	arena := task.NewArena("task-1", inputs)

	var stopped atomic.Bool
	req := SegmentRequest{
		ShouldStop: stopped.Load,
		OnUpdate: func(*task.SegmentRecord) {
			stopped.Store(true)
		},
	}
	require.NoError(t, pool.Translate(context.Background(), arena, req))

	counts := arena.CountByStatus()
	assert.Greater(t, counts[task.SegmentPending], 0, "stop must leave unclaimed segments pending")
	assert.Greater(t, counts[task.SegmentCompleted], 0)
}

func TestPoolDiscardSkipsCacheAndResult(t *testing.T) {
	transport := &fakeTranslator{}
	store := cache.NewMemory()
	pool := testPool(transport, store)

	inputs := [][]subtitle.Entry{testEntries("a", 2)}
	arena := task.NewArena("task-1", inputs)

	req := SegmentRequest{
		Discard: func() bool { return true },
	}
	require.NoError(t, pool.Translate(context.Background(), arena, req))

	rec, _ := arena.Get(0)
	assert.Equal(t, task.SegmentFailed, rec.Status())
	assert.Equal(t, 1, transport.callCount(), "a discarded segment is not retried")

	// a fresh run must not see a cached result from the discarded one
	fresh := task.NewArena("task-2", inputs)
	require.NoError(t, pool.Translate(context.Background(), fresh, SegmentRequest{Discard: func() bool { return false }}))
	assert.Equal(t, 2, transport.callCount(), "discarded results must not populate the cache")
}

func TestPoolNonRetryableErrorFailsImmediately(t *testing.T) {
	transport := &fakeTranslator{
		respond: func(int, llm.TranslateRequest) ([]string, error) {
			return nil, NewError(ErrConfig, "api key missing")
		},
	}
	pool := testPool(transport, cache.NewMemory())
	arena := task.NewArena("task-1", [][]subtitle.Entry{testEntries("a", 1)})

	require.NoError(t, pool.Translate(context.Background(), arena, SegmentRequest{}))

	rec, _ := arena.Get(0)
	assert.Equal(t, task.SegmentFailed, rec.Status())
	assert.Equal(t, 0, rec.RetryCount(), "config errors must not charge the retry budget")
	assert.Equal(t, 1, transport.callCount())
}

func TestPoolIdleWorkerDoesNotShortcutBackoff(t *testing.T) {
	base := 150 * time.Millisecond

	var mu sync.Mutex
	attempts := make(map[int][]time.Time)
	transport := &fakeTranslator{
		respond: func(_ int, req llm.TranslateRequest) ([]string, error) {
			mu.Lock()
			attempts[req.Entries[0].Index] = append(attempts[req.Entries[0].Index], time.Now())
			n := len(attempts[req.Entries[0].Index])
			mu.Unlock()

			// the first segment fails once; the second succeeds right away,
			// leaving its worker idle while the first backs off
			if req.Entries[0].Index == 1 && n == 1 {
				return nil, fmt.Errorf("upstream unavailable")
			}
			texts := make([]string, len(req.Entries))
			for i, e := range req.Entries {
				texts[i] = "ok " + e.Text
			}
			return texts, nil
		},
	}
	pool := NewPool(transport, cache.NewMemory(), semaphore.NewWeighted(4), PoolConfig{
		Workers:     2,
		MaxRetries:  3,
		BackoffBase: base,
		BackoffCap:  time.Second,
	})

	first := testEntries("a", 2)
	second := testEntries("b", 2)
	second[0].Index = 100
	arena := task.NewArena("task-1", [][]subtitle.Entry{first, second})

	require.NoError(t, pool.Translate(context.Background(), arena, SegmentRequest{}))
	require.True(t, arena.Done())

	mu.Lock()
	failing := attempts[1]
	mu.Unlock()
	require.Len(t, failing, 2)
	assert.GreaterOrEqual(t, failing[1].Sub(failing[0]), base,
		"retry must wait out the backoff even while another worker is idle")

	rec, _ := arena.Get(0)
	assert.Equal(t, task.SegmentCompleted, rec.Status())
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second
	assert.Equal(t, 100*time.Millisecond, backoff(base, cap, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(base, cap, 2))
	assert.Equal(t, 400*time.Millisecond, backoff(base, cap, 3))
	assert.Equal(t, 800*time.Millisecond, backoff(base, cap, 4))
	assert.Equal(t, cap, backoff(base, cap, 5))
	assert.Equal(t, cap, backoff(base, cap, 40))
}
