package timeline

import (
	"fmt"

	"github.com/forPelevin/mvsync/internal/types"
)

const (
	// BlankTolerance is the largest uncovered span the renderer leaves unfilled.
	BlankTolerance = 0.05
	// DefaultFPS is the canonical rate when the first clip reports none.
	DefaultFPS = 30
)

// BuildRenderTimeline lays the EDL out as a contiguous video track. Frame size
// and rate come from the first placement's clip; uncovered spans become black
// filler and each clip plays from its beginning, trimmed to the placement or
// the source length, whichever is shorter. The song is bound as audio,
// trimmed to the video length.
func BuildRenderTimeline(edl types.EditDecisionList, clips map[string]types.VideoInfo) (types.RenderTimeline, error) {
	if len(edl.Placements) == 0 {
		return types.RenderTimeline{}, types.ErrNoPlacements
	}
	placements := SortByStart(edl.Placements)

	first, ok := clips[placements[0].SourceRef]
	if !ok {
		return types.RenderTimeline{}, fmt.Errorf("no stream info for %s", placements[0].SourceRef)
	}
	rt := types.RenderTimeline{
		Width:  first.Width,
		Height: first.Height,
		FPS:    first.FPS,
		Audio:  edl.SongRef,
	}
	if rt.FPS <= 0 {
		rt.FPS = DefaultFPS
	}

	cursor := 0.0
	for _, p := range placements {
		info, ok := clips[p.SourceRef]
		if !ok {
			return types.RenderTimeline{}, fmt.Errorf("no stream info for %s", p.SourceRef)
		}
		if gap := p.StartTime - cursor; gap > BlankTolerance {
			rt.Segments = append(rt.Segments, types.Segment{Kind: types.SegmentBlank, Duration: types.Round3(gap)})
		}

		d := p.Duration
		if info.Duration > 0 && info.Duration < d {
			d = info.Duration
		}
		if d > 0 {
			rt.Segments = append(rt.Segments, types.Segment{
				Kind:     types.SegmentClip,
				Source:   p.SourceRef,
				Duration: d,
				Resize:   info.Width != rt.Width || info.Height != rt.Height,
			})
		}
		cursor = p.StartTime + p.Duration
	}
	if rest := edl.SongDuration - cursor; rest > BlankTolerance {
		rt.Segments = append(rt.Segments, types.Segment{Kind: types.SegmentBlank, Duration: types.Round3(rest)})
	}

	rt.AudioDuration = types.Round3(rt.VideoDuration())
	return rt, nil
}
