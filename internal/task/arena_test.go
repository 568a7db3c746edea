package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subweave/internal/subtitle"
)

func arenaInputs(segments, entriesPer int) [][]subtitle.Entry {
	inputs := make([][]subtitle.Entry, 0, segments)
	n := 0
	for i := 0; i < segments; i++ {
		var entries []subtitle.Entry
		for j := 0; j < entriesPer; j++ {
			n++
			entries = append(entries, subtitle.Entry{
				Index: n,
				Start: time.Duration(n) * time.Second,
				End:   time.Duration(n)*time.Second + 500*time.Millisecond,
				Text:  "text",
			})
		}
		inputs = append(inputs, entries)
	}
	return inputs
}

func TestArena_ClaimIsExclusive(t *testing.T) {
	arena := NewArena("t1", arenaInputs(8, 2))

	var mu sync.Mutex
	claimed := make(map[int]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, ok := arena.ClaimNext()
				if !ok {
					return
				}
				mu.Lock()
				claimed[rec.Index]++
				mu.Unlock()
				rec.Complete(rec.Input(), time.Millisecond)
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 8)
	for idx, n := range claimed {
		assert.Equal(t, 1, n, "segment %d claimed %d times", idx, n)
	}
	assert.True(t, arena.Done())
}

func TestSegmentRecord_RetryLifecycle(t *testing.T) {
	arena := NewArena("t1", arenaInputs(1, 3))
	rec, ok := arena.Get(0)
	require.True(t, ok)

	require.True(t, rec.Claim())
	assert.Equal(t, SegmentTranslating, rec.Status())

	// two failures leave budget for another attempt
	assert.True(t, rec.FailAttempt("boom", nil, 3))
	assert.Equal(t, SegmentRetrying, rec.Status())
	assert.False(t, rec.Claim(), "retrying segments belong to the worker backing off")
	require.True(t, rec.Reclaim())
	assert.True(t, rec.FailAttempt("boom again", nil, 3))

	// third failure exhausts the budget
	require.True(t, rec.Reclaim())
	assert.False(t, rec.FailAttempt("still broken", nil, 3))
	assert.Equal(t, SegmentFailed, rec.Status())
	assert.Equal(t, 3, rec.RetryCount())

	snap := rec.Snapshot()
	assert.Equal(t, "still broken", snap.ErrorMessage)
	assert.Equal(t, 3, snap.RetryCount)

	// terminally failed segments cannot be claimed again
	assert.False(t, rec.Claim())
	assert.False(t, rec.Reclaim())
}

func TestSegmentRecord_PartialResultPreserved(t *testing.T) {
	arena := NewArena("t1", arenaInputs(1, 2))
	rec, _ := arena.Get(0)
	partial := rec.Input()

	require.True(t, rec.Claim())
	rec.FailAttempt("mismatch", partial, 1)

	got, ok := rec.Result()
	require.True(t, ok)
	assert.Equal(t, partial, got)

	snap := rec.Snapshot()
	assert.Len(t, snap.PartialResult, 2)
}

func TestSegmentRecord_PartialResultCountMustMatchInput(t *testing.T) {
	arena := NewArena("t1", arenaInputs(1, 3))
	rec, _ := arena.Get(0)

	require.True(t, rec.Claim())
	short := rec.Input()[:1]
	rec.FailAttempt("truncated", short, 1)

	_, ok := rec.Result()
	assert.False(t, ok)
}

func TestArena_Restore(t *testing.T) {
	arena := NewArena("t1", arenaInputs(3, 2))
	done := arenaInputs(1, 2)[0]

	arena.Restore(1, done, 0)

	rec, _ := arena.Get(1)
	assert.Equal(t, SegmentCompleted, rec.Status())
	got, ok := rec.Result()
	require.True(t, ok)
	assert.Equal(t, done, got)

	// restored segments are skipped by claiming
	first, ok := arena.ClaimNext()
	require.True(t, ok)
	assert.Equal(t, 0, first.Index)
	second, ok := arena.ClaimNext()
	require.True(t, ok)
	assert.Equal(t, 2, second.Index)
}

func TestSegmentTransitions(t *testing.T) {
	assert.True(t, SegmentPending.CanTransitionTo(SegmentTranslating))
	assert.True(t, SegmentTranslating.CanTransitionTo(SegmentCompleted))
	assert.True(t, SegmentTranslating.CanTransitionTo(SegmentFailed))
	assert.True(t, SegmentFailed.CanTransitionTo(SegmentRetrying))
	assert.True(t, SegmentRetrying.CanTransitionTo(SegmentTranslating))

	assert.False(t, SegmentPending.CanTransitionTo(SegmentCompleted))
	assert.False(t, SegmentCompleted.CanTransitionTo(SegmentTranslating))
}
