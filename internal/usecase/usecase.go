package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/mvsync/internal/domain/alignment"
	"github.com/forPelevin/mvsync/internal/domain/timeline"
	"github.com/forPelevin/mvsync/internal/logging"
	"github.com/forPelevin/mvsync/internal/ports"
	"github.com/forPelevin/mvsync/internal/types"
)

type Deps struct {
	Media ports.MediaTool
	Log   zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

// ProgressFunc announces a stage of total items and returns the per-item tick.
type ProgressFunc func(stage string, total int) (step func())

type Input struct {
	// Song.Duration <= 0 means probe the song file.
	Song        types.SongMeta
	ArtistClips []string
	BRollClips  []string
	ScratchDir  string
	Concurrency int

	// OutPath empty stops after the EDL.
	OutPath  string
	Render   types.RenderSettings
	Progress ProgressFunc
}

type Result struct {
	EDL    types.EditDecisionList
	Output string
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	song := in.Song
	if song.Duration <= 0 {
		d, err := u.d.Media.ProbeDuration(ctx, song.Ref)
		if err != nil {
			return Result{}, fmt.Errorf("song: %w", err)
		}
		song.Duration = d
	}
	u.d.Log.Info().
		Str("song", song.Ref).
		Float64("duration", song.Duration).
		Int("artist_clips", len(in.ArtistClips)).
		Int("broll_clips", len(in.BRollClips)).
		Msg("building edit decision list")

	artist, err := u.PlaceArtists(ctx, song.Ref, in.ArtistClips, in.ScratchDir, in.Concurrency, in.Progress)
	if err != nil {
		return Result{}, err
	}
	broll, err := u.PlaceBRoll(ctx, in.BRollClips, song.Duration, artist, in.Concurrency, in.Progress)
	if err != nil {
		return Result{}, err
	}

	edl, err := timeline.Assemble(artist, broll, song)
	if err != nil {
		return Result{}, err
	}
	u.d.Log.Info().
		Int("artist", len(artist)).
		Int("broll", len(broll)).
		Msg("edit decision list ready")

	res := Result{EDL: edl}
	if in.OutPath == "" {
		return res, nil
	}
	if err := u.Render(ctx, edl, in.OutPath, in.Render); err != nil {
		return res, err
	}
	res.Output = in.OutPath
	return res, nil
}

// PlaceArtists aligns every artist clip against the song and returns one
// placement per clip that could be placed, ordered by start time. Clips that
// fail any step are logged and skipped.
func (u Usecase) PlaceArtists(
	ctx context.Context,
	songPath string,
	clips []string,
	scratchDir string,
	concurrency int,
	progress ProgressFunc,
) ([]types.Placement, error) {
	if len(clips) == 0 {
		return nil, nil
	}
	log := logging.WithComponent(u.d.Log, "artist")

	samples, err := u.d.Media.DecodeMono(ctx, songPath, alignment.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode song: %w", err)
	}
	ref := alignment.NewReference(samples, alignment.SampleRate)
	step := startStage(progress, "aligning", len(clips))

	results := make([]*types.Placement, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(concurrency))
	for i, clip := range clips {
		i, clip := i, clip
		g.Go(func() error {
			defer step()
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := u.placeArtist(gctx, ref, clip, scratchDir)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Str("clip", clip).Err(err).Msg("skipping artist clip")
				return nil
			}
			log.Debug().Str("clip", clip).Float64("start", p.StartTime).Float64("duration", p.Duration).Msg("placed")
			results[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return collect(results), nil
}

func (u Usecase) placeArtist(ctx context.Context, ref *alignment.Reference, clip, scratchDir string) (types.Placement, error) {
	excerpt := filepath.Join(scratchDir, uuid.NewString()+".wav")
	defer os.Remove(excerpt)

	if err := u.d.Media.ExtractExcerpt(ctx, clip, excerpt, alignment.MaxExcerptSeconds); err != nil {
		return types.Placement{}, err
	}
	samples, err := u.d.Media.DecodeMono(ctx, excerpt, alignment.SampleRate)
	if err != nil {
		return types.Placement{}, fmt.Errorf("%w: %w", types.ErrAudioExtractionFailed, err)
	}
	offset, err := ref.Offset(samples)
	if err != nil {
		return types.Placement{}, err
	}
	dur, err := u.d.Media.ProbeDuration(ctx, clip)
	if err != nil {
		return types.Placement{}, err
	}
	if dur <= 0 {
		return types.Placement{}, fmt.Errorf("%w: %s has no duration", types.ErrMediaUnreadable, clip)
	}
	return types.Placement{
		Filename:  filepath.Base(clip),
		SourceRef: clip,
		Kind:      types.KindArtist,
		StartTime: offset,
		EndTime:   types.Round3(offset + dur),
		Duration:  dur,
	}, nil
}

// PlaceBRoll probes the b-roll pool and tiles the gaps left by existing.
// An empty or fully unreadable pool yields no placements.
func (u Usecase) PlaceBRoll(
	ctx context.Context,
	clips []string,
	songDuration float64,
	existing []types.Placement,
	concurrency int,
	progress ProgressFunc,
) ([]types.Placement, error) {
	if len(clips) == 0 {
		return nil, nil
	}
	pool, err := u.probePool(ctx, clips, concurrency, progress)
	if err != nil {
		return nil, err
	}
	gaps := timeline.FindGaps(existing, songDuration)
	u.d.Log.Debug().Int("gaps", len(gaps)).Int("pool", len(pool)).Msg("filling gaps")
	return timeline.FillGaps(gaps, pool), nil
}

func (u Usecase) probePool(ctx context.Context, clips []string, concurrency int, progress ProgressFunc) ([]types.Clip, error) {
	log := logging.WithComponent(u.d.Log, "broll")
	step := startStage(progress, "probing", len(clips))

	durations := make([]float64, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(concurrency))
	for i, clip := range clips {
		i, clip := i, clip
		g.Go(func() error {
			defer step()
			d, err := u.d.Media.ProbeDuration(gctx, clip)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Str("clip", clip).Err(err).Msg("skipping b-roll clip")
				return nil
			}
			durations[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pool := make([]types.Clip, 0, len(clips))
	for i, clip := range clips {
		if durations[i] <= 0 {
			continue
		}
		pool = append(pool, types.Clip{Path: clip, Duration: durations[i]})
	}
	return pool, nil
}

// Render probes every clip the EDL references, lays out the render timeline
// and hands it to the encoder. Any failure here is terminal.
func (u Usecase) Render(ctx context.Context, edl types.EditDecisionList, outPath string, settings types.RenderSettings) error {
	if len(edl.Placements) == 0 {
		return types.ErrNoPlacements
	}
	infos := make(map[string]types.VideoInfo)
	for _, p := range edl.Placements {
		if _, ok := infos[p.SourceRef]; ok {
			continue
		}
		info, err := u.d.Media.ProbeVideo(ctx, p.SourceRef)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
		}
		infos[p.SourceRef] = info
	}

	rt, err := timeline.BuildRenderTimeline(edl, infos)
	if err != nil {
		if errors.Is(err, types.ErrNoPlacements) {
			return err
		}
		return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
	}
	u.d.Log.Info().
		Int("segments", len(rt.Segments)).
		Str("size", fmt.Sprintf("%dx%d", rt.Width, rt.Height)).
		Float64("fps", rt.FPS).
		Float64("video_duration", rt.VideoDuration()).
		Str("output", outPath).
		Msg("rendering")

	if err := u.d.Media.Render(ctx, rt, outPath, settings); err != nil {
		return fmt.Errorf("%w: %w", types.ErrRenderFailed, err)
	}
	return nil
}

func collect(results []*types.Placement) []types.Placement {
	out := make([]types.Placement, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return timeline.SortByStart(out)
}

func startStage(progress ProgressFunc, stage string, total int) func() {
	if progress == nil {
		return func() {}
	}
	if step := progress(stage, total); step != nil {
		return step
	}
	return func() {}
}

func limit(concurrency int) int {
	if concurrency <= 0 {
		return 1
	}
	return concurrency
}
