package timeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/forPelevin/mvsync/internal/types"
)

func artist(path string, start, dur float64) types.Placement {
	return types.Placement{
		Filename:  path,
		SourceRef: path,
		Kind:      types.KindArtist,
		StartTime: start,
		EndTime:   start + dur,
		Duration:  dur,
	}
}

// randomTiling returns sorted, non-overlapping placements whose separations
// are either zero or comfortably above GapTolerance, plus a total duration.
func randomTiling(rng *rand.Rand) ([]types.Placement, float64) {
	spacer := func() float64 {
		if rng.Intn(2) == 0 {
			return 0
		}
		return 0.6 + rng.Float64()*3
	}
	n := rng.Intn(6)
	var out []types.Placement
	cursor := spacer()
	for i := 0; i < n; i++ {
		d := 0.5 + rng.Float64()*5
		out = append(out, artist(fmt.Sprintf("a%d.mp4", i), cursor, d))
		cursor = out[len(out)-1].EndTime + spacer()
	}
	if n == 0 {
		cursor = 1 + rng.Float64()*10
	}
	return out, cursor
}

func TestFindGaps_Table(t *testing.T) {
	tests := []struct {
		name string
		in   []types.Placement
		dur  float64
		want []types.Gap
	}{
		{"empty", nil, 10, []types.Gap{{Start: 0, End: 10}}},
		{"empty zero song", nil, 0, nil},
		{"leading and trailing", []types.Placement{artist("a", 2, 3)}, 10, []types.Gap{{Start: 0, End: 2}, {Start: 5, End: 10}}},
		{"below tolerance", []types.Placement{artist("a", 0.5, 3), artist("b", 4, 5.6)}, 10, nil},
		{"between", []types.Placement{artist("b", 6, 4), artist("a", 0, 3)}, 10, []types.Gap{{Start: 3, End: 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindGaps(tt.in, tt.dur)
			if len(got) != len(tt.want) {
				t.Fatalf("gaps = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("gap[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFindGaps_CompletesCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		placements, total := randomTiling(rng)
		gaps := FindGaps(placements, total)

		type span struct{ start, end float64 }
		var spans []span
		for _, p := range placements {
			spans = append(spans, span{p.StartTime, p.EndTime})
		}
		for _, g := range gaps {
			if g.End <= g.Start {
				t.Fatalf("iter %d: degenerate gap %v", iter, g)
			}
			spans = append(spans, span{g.Start, g.End})
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

		cursor := 0.0
		for _, s := range spans {
			if s.start != cursor {
				t.Fatalf("iter %d: span starts at %v, coverage reached %v", iter, s.start, cursor)
			}
			cursor = s.end
		}
		if cursor != total {
			t.Fatalf("iter %d: coverage ends at %v, want %v", iter, cursor, total)
		}
	}
}

func TestFillGaps_ScenarioExample(t *testing.T) {
	art := []types.Placement{artist("artist.mp4", 12.5, 20)}
	pool := []types.Clip{{Path: "/b/one.mp4", Duration: 10}, {Path: "/b/two.mp4", Duration: 10}}

	gaps := FindGaps(art, 100)
	if len(gaps) != 2 || gaps[0] != (types.Gap{Start: 0, End: 12.5}) || gaps[1] != (types.Gap{Start: 32.5, End: 100}) {
		t.Fatalf("unexpected gaps: %v", gaps)
	}

	broll := FillGaps(gaps, pool)
	if len(broll) != 9 {
		t.Fatalf("expected 9 b-roll placements, got %d: %v", len(broll), broll)
	}
	if broll[0].StartTime != 0 || broll[0].Duration != 10 {
		t.Fatalf("first fill = %+v", broll[0])
	}
	if broll[1].StartTime != 10 || broll[1].Duration != 2.5 || broll[1].EndTime != 12.5 {
		t.Fatalf("truncated fill = %+v", broll[1])
	}
	last := broll[8]
	if last.StartTime != 92.5 || last.Duration != 7.5 || last.EndTime != 100 {
		t.Fatalf("last fill = %+v", last)
	}
	for i, p := range broll {
		wantSrc := pool[i%2].Path
		if p.SourceRef != wantSrc {
			t.Fatalf("placement %d source = %s, want %s", i, p.SourceRef, wantSrc)
		}
		if p.Kind != types.KindBRoll {
			t.Fatalf("placement %d kind = %s", i, p.Kind)
		}
	}

	edl, err := Assemble(art, broll, types.SongMeta{Ref: "song.wav", Duration: 100, Tempo: 120})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if edl.TotalClips != 10 || len(edl.Placements) != 10 {
		t.Fatalf("expected 10 placements, got %d", len(edl.Placements))
	}
	cursor := 0.0
	for _, p := range edl.Placements {
		if math.Abs(p.StartTime-cursor) > 1e-9 {
			t.Fatalf("coverage hole at %v (next placement starts %v)", cursor, p.StartTime)
		}
		cursor = p.EndTime
	}
	if cursor != 100 {
		t.Fatalf("coverage ends at %v", cursor)
	}
}

func TestFillGaps_WrapsPoolUntilGapsFilled(t *testing.T) {
	gaps := []types.Gap{{Start: 0, End: 7}, {Start: 20, End: 26}}
	pool := []types.Clip{{Path: "x.mp4", Duration: 2}, {Path: "y.mp4", Duration: 1.5}}

	got := FillGaps(gaps, pool)
	var covered float64
	for _, p := range got {
		covered += p.Duration
	}
	if math.Abs(covered-13) > 1e-9 {
		t.Fatalf("covered %.3f seconds, want 13", covered)
	}
	// The index carries over: gap one uses x,y,x,y (7s exactly), gap two starts at x.
	if got[4].SourceRef != "x.mp4" || got[4].StartTime != 20 {
		t.Fatalf("second gap first fill = %+v", got[4])
	}
}

func TestFillGaps_SkipsShortGapsAndEmptyPool(t *testing.T) {
	if got := FillGaps([]types.Gap{{Start: 0, End: 10}}, nil); len(got) != 0 {
		t.Fatalf("expected no placements for empty pool, got %v", got)
	}
	got := FillGaps([]types.Gap{{Start: 0, End: 0.9}, {Start: 5, End: 6}}, []types.Clip{{Path: "x.mp4", Duration: 4}})
	if len(got) != 1 || got[0].StartTime != 5 || got[0].Duration != 1 {
		t.Fatalf("unexpected placements: %v", got)
	}
}

func TestFillGaps_EndEqualsStartPlusDuration(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for iter := 0; iter < 2000; iter++ {
		start := types.Round3(rng.Float64() * 60)
		gap := types.Gap{Start: start, End: types.Round3(start + 1 + rng.Float64()*20)}
		pool := make([]types.Clip, 1+rng.Intn(4))
		for i := range pool {
			pool[i] = types.Clip{Path: fmt.Sprintf("b%d.mp4", i), Duration: types.Round3(0.1 + rng.Float64()*3)}
		}

		got := FillGaps([]types.Gap{gap}, pool)
		cursor := gap.Start
		for i, p := range got {
			if p.EndTime != types.Round3(p.StartTime+p.Duration) {
				t.Fatalf("iter %d placement %d: end %v != start %v + duration %v", iter, i, p.EndTime, p.StartTime, p.Duration)
			}
			if p.StartTime != cursor {
				t.Fatalf("iter %d placement %d: starts at %v, previous ended at %v", iter, i, p.StartTime, cursor)
			}
			cursor = p.EndTime
		}
		if cursor != gap.End {
			t.Fatalf("iter %d: fill ends at %v, gap ends at %v", iter, cursor, gap.End)
		}
	}
}

func TestAssemble_OrdersAndKeepsArtistFirstOnTies(t *testing.T) {
	art := []types.Placement{artist("a2", 30, 5), artist("a1", 10, 5)}
	broll := []types.Placement{
		{SourceRef: "b1", Kind: types.KindBRoll, StartTime: 10, EndTime: 12, Duration: 2},
		{SourceRef: "b0", Kind: types.KindBRoll, StartTime: 0, EndTime: 10, Duration: 10},
	}
	edl, err := Assemble(art, broll, types.SongMeta{Duration: 40})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []string{"b0", "a1", "b1", "a2"}
	for i, p := range edl.Placements {
		if p.SourceRef != want[i] {
			t.Fatalf("order = %v, want %v", refs(edl.Placements), want)
		}
	}
}

func TestAssemble_RandomOrderingInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for iter := 0; iter < 100; iter++ {
		var art, broll []types.Placement
		nArt, nBRoll := rng.Intn(8), 1+rng.Intn(8)
		for i := 0; i < nArt; i++ {
			art = append(art, artist(fmt.Sprintf("a%d", i), float64(rng.Intn(20)), 1))
		}
		for i := 0; i < nBRoll; i++ {
			s := float64(rng.Intn(20))
			broll = append(broll, types.Placement{SourceRef: fmt.Sprintf("b%d", i), Kind: types.KindBRoll, StartTime: s, EndTime: s + 1, Duration: 1})
		}
		edl, err := Assemble(art, broll, types.SongMeta{Duration: 30})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		for i := 1; i < len(edl.Placements); i++ {
			prev, cur := edl.Placements[i-1], edl.Placements[i]
			if prev.StartTime > cur.StartTime {
				t.Fatalf("iter %d: not sorted at %d", iter, i)
			}
			if prev.StartTime == cur.StartTime && prev.Kind == types.KindBRoll && cur.Kind == types.KindArtist {
				t.Fatalf("iter %d: b-roll before artist at %v", iter, cur.StartTime)
			}
		}
	}
}

func TestAssemble_NoPlacements(t *testing.T) {
	_, err := Assemble(nil, nil, types.SongMeta{Duration: 10})
	if !errors.Is(err, types.ErrNoPlacements) {
		t.Fatalf("expected ErrNoPlacements, got %v", err)
	}
}

func TestBuildRenderTimeline_FillsAndNormalizes(t *testing.T) {
	edl := types.EditDecisionList{
		SongRef:      "song.wav",
		SongDuration: 20,
		Placements: []types.Placement{
			artist("a.mp4", 2, 5),
			artist("b.mp4", 7.02, 4),
			artist("c.mp4", 12, 6),
		},
	}
	clips := map[string]types.VideoInfo{
		"a.mp4": {Duration: 30, Width: 1920, Height: 1080, FPS: 25},
		"b.mp4": {Duration: 30, Width: 1280, Height: 720, FPS: 60},
		"c.mp4": {Duration: 3, Width: 1920, Height: 1080},
	}

	rt, err := BuildRenderTimeline(edl, clips)
	if err != nil {
		t.Fatalf("BuildRenderTimeline: %v", err)
	}
	if rt.Width != 1920 || rt.Height != 1080 || rt.FPS != 25 {
		t.Fatalf("canonical format = %dx%d@%v", rt.Width, rt.Height, rt.FPS)
	}

	want := []types.Segment{
		{Kind: types.SegmentBlank, Duration: 2},
		{Kind: types.SegmentClip, Source: "a.mp4", Duration: 5},
		{Kind: types.SegmentClip, Source: "b.mp4", Duration: 4, Resize: true},
		{Kind: types.SegmentBlank, Duration: 0.98},
		{Kind: types.SegmentClip, Source: "c.mp4", Duration: 3},
		{Kind: types.SegmentBlank, Duration: 2},
	}
	if len(rt.Segments) != len(want) {
		t.Fatalf("segments = %+v", rt.Segments)
	}
	for i := range want {
		if rt.Segments[i] != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, rt.Segments[i], want[i])
		}
	}
	if rt.Audio != "song.wav" || rt.AudioDuration != 16.98 {
		t.Fatalf("audio = %s for %.3fs", rt.Audio, rt.AudioDuration)
	}
}

func TestBuildRenderTimeline_DefaultFrameRate(t *testing.T) {
	edl := types.EditDecisionList{SongDuration: 5, Placements: []types.Placement{artist("a.mp4", 0, 5)}}
	rt, err := BuildRenderTimeline(edl, map[string]types.VideoInfo{"a.mp4": {Duration: 5, Width: 640, Height: 360}})
	if err != nil {
		t.Fatalf("BuildRenderTimeline: %v", err)
	}
	if rt.FPS != DefaultFPS {
		t.Fatalf("fps = %v, want %v", rt.FPS, DefaultFPS)
	}
}

func TestBuildRenderTimeline_CoversSong(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	for iter := 0; iter < 200; iter++ {
		placements, total := randomTiling(rng)
		if len(placements) == 0 {
			continue
		}
		placements = append(placements, FillGaps(FindGaps(placements, total), []types.Clip{{Path: "fill.mp4", Duration: 2.75}})...)
		edl, err := Assemble(placements, nil, types.SongMeta{Duration: total})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		clips := map[string]types.VideoInfo{"fill.mp4": {Duration: 100, Width: 640, Height: 360, FPS: 30}}
		for _, p := range placements {
			clips[p.SourceRef] = types.VideoInfo{Duration: 100, Width: 640, Height: 360, FPS: 30}
		}

		rt, err := BuildRenderTimeline(edl, clips)
		if err != nil {
			t.Fatalf("BuildRenderTimeline: %v", err)
		}
		if diff := math.Abs(rt.VideoDuration() - total); diff > 1.0/30 {
			t.Fatalf("iter %d: timeline %.4fs, song %.4fs", iter, rt.VideoDuration(), total)
		}
	}
}

func TestBuildRenderTimeline_Errors(t *testing.T) {
	if _, err := BuildRenderTimeline(types.EditDecisionList{SongDuration: 3}, nil); !errors.Is(err, types.ErrNoPlacements) {
		t.Fatalf("expected ErrNoPlacements, got %v", err)
	}
	edl := types.EditDecisionList{SongDuration: 3, Placements: []types.Placement{artist("a.mp4", 0, 3)}}
	if _, err := BuildRenderTimeline(edl, map[string]types.VideoInfo{}); err == nil {
		t.Fatalf("expected error for missing stream info")
	}
}

func refs(ps []types.Placement) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.SourceRef)
	}
	return out
}
