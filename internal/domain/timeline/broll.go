package timeline

import (
	"path/filepath"

	"github.com/forPelevin/mvsync/internal/types"
)

// FillGaps tiles every gap of at least MinFillableGap seconds with pool clips
// taken round-robin. The pool index carries across gaps, clips are reused as
// often as needed, and the last clip of a gap is truncated to fit.
func FillGaps(gaps []types.Gap, pool []types.Clip) []types.Placement {
	if len(pool) == 0 {
		return nil
	}

	var out []types.Placement
	next := 0
	for _, g := range gaps {
		if g.Duration() < MinFillableGap {
			continue
		}
		cursor := g.Start
		for cursor < g.End {
			c := pool[next%len(pool)]
			next++

			start := cursor
			d := c.Duration
			if remaining := g.End - cursor; d >= remaining {
				d = remaining
				cursor = g.End
			} else {
				cursor += d
			}
			if d <= 0 {
				break
			}
			// Both ends come from the running cursor so neighbours share an
			// edge, and duration is derived from them.
			s, e := types.Round3(start), types.Round3(cursor)
			if e <= s {
				continue
			}
			out = append(out, types.Placement{
				Filename:  filepath.Base(c.Path),
				SourceRef: c.Path,
				Kind:      types.KindBRoll,
				StartTime: s,
				EndTime:   e,
				Duration:  types.Round3(e - s),
			})
		}
	}
	return out
}
