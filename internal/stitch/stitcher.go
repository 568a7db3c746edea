// Package stitch reassembles segment translation outputs into one
// ordered track.
package stitch

import (
	"fmt"
	"time"

	"subweave/internal/subtitle"
)

// boundaryTolerance is how much a boundary gap may exceed the original
// track's gap before timestamps are clamped back to the recorded values.
const boundaryTolerance = 500 * time.Millisecond

// SegmentResult is one segment's contribution to the stitched track.
// OriginalStart/OriginalEnd are the boundary times the segmenter
// recorded; they are authoritative because the LLM only ever changes
// text, never timings.
type SegmentResult struct {
	Index         int
	Entries       []subtitle.Entry
	ExpectedCount int
	OriginalStart time.Duration
	OriginalEnd   time.Duration
}

// Result is a possibly partial stitched track. MissingSegments lists
// the indices of segments that produced no usable output; they are
// surfaced explicitly instead of being silently dropped.
type Result struct {
	Entries         []subtitle.Entry
	MissingSegments []int
}

// Partial reports whether any segment is missing from the output.
func (r Result) Partial() bool {
	return len(r.MissingSegments) > 0
}

// Stitch concatenates segment outputs strictly by segment index,
// reconciling boundary timing anomalies against the recorded originals.
func Stitch(results []SegmentResult) (Result, error) {
	ordered := make([]*SegmentResult, len(results))
	for i := range results {
		r := &results[i]
		if r.Index < 0 || r.Index >= len(results) {
			return Result{}, fmt.Errorf("segment index %d out of range [0,%d)", r.Index, len(results))
		}
		if ordered[r.Index] != nil {
			return Result{}, fmt.Errorf("duplicate segment index %d", r.Index)
		}
		ordered[r.Index] = r
	}

	var ret Result
	prevIndex := -1
	prevOriginalEnd := time.Duration(0)

	for idx, seg := range ordered {
		if len(seg.Entries) == 0 {
			ret.MissingSegments = append(ret.MissingSegments, idx)
			continue
		}
		if len(seg.Entries) != seg.ExpectedCount {
			return Result{}, fmt.Errorf("segment %d has %d entries, segmenter recorded %d",
				idx, len(seg.Entries), seg.ExpectedCount)
		}

		entries := append([]subtitle.Entry(nil), seg.Entries...)

		// Boundary check only applies between adjacent present segments; a
		// missing segment in between legitimately widens the gap.
		if prevIndex == idx-1 && len(ret.Entries) > 0 {
			last := &ret.Entries[len(ret.Entries)-1]
			first := &entries[0]

			gap := first.Start - last.End
			originalGap := seg.OriginalStart - prevOriginalEnd
			if gap < 0 || gap > originalGap+boundaryTolerance {
				last.End = prevOriginalEnd
				first.Start = seg.OriginalStart
			}
		}

		ret.Entries = append(ret.Entries, entries...)
		prevIndex = idx
		prevOriginalEnd = seg.OriginalEnd
	}

	return ret, nil
}
