package timeline

import (
	"sort"

	"github.com/forPelevin/mvsync/internal/types"
)

const (
	// GapTolerance: uncovered spans this short or shorter are not reported.
	GapTolerance = 0.5
	// MinFillableGap: gaps shorter than this are left for the renderer's blank filler.
	MinFillableGap = 1.0
)

// FindGaps returns the uncovered intervals of [0, songDuration) in order.
// Consecutive placements are compared end-to-start, so overlapping input
// yields only approximate coverage.
func FindGaps(placements []types.Placement, songDuration float64) []types.Gap {
	if len(placements) == 0 {
		if songDuration > 0 {
			return []types.Gap{{Start: 0, End: songDuration}}
		}
		return nil
	}

	sorted := SortByStart(placements)

	var gaps []types.Gap
	if first := sorted[0].StartTime; first > GapTolerance {
		gaps = append(gaps, types.Gap{Start: 0, End: first})
	}
	for i := 0; i+1 < len(sorted); i++ {
		end, next := sorted[i].EndTime, sorted[i+1].StartTime
		if next-end > GapTolerance {
			gaps = append(gaps, types.Gap{Start: end, End: next})
		}
	}
	if last := sorted[len(sorted)-1].EndTime; songDuration-last > GapTolerance {
		gaps = append(gaps, types.Gap{Start: last, End: songDuration})
	}
	return gaps
}

// SortByStart returns a start-time ordered copy; equal starts keep input order.
func SortByStart(placements []types.Placement) []types.Placement {
	out := append([]types.Placement(nil), placements...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
