package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/mvsync/internal/types"
)

const (
	DefaultFormat     = "mp4"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPreset     = "veryfast"
	DefaultCRF        = 18
)

// Render encodes the timeline into a single file: every segment is brought
// to the canonical size and rate, the segments are concatenated, and the
// song is mapped as the only audio track, cut to the video length.
func (a *Adapter) Render(ctx context.Context, rt types.RenderTimeline, outPath string, settings types.RenderSettings) error {
	args, err := renderArgs(rt, outPath, withDefaults(settings))
	if err != nil {
		return err
	}
	a.log.Debug().Strs("args", args).Msg("executing ffmpeg render")

	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render: %w\n%s", err, string(b))
	}
	a.log.Info().Str("output", outPath).Msg("render completed")
	return nil
}

func withDefaults(s types.RenderSettings) types.RenderSettings {
	if s.Format == "" {
		s.Format = DefaultFormat
	}
	if s.VideoCodec == "" {
		s.VideoCodec = DefaultVideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = DefaultAudioCodec
	}
	if s.Preset == "" {
		s.Preset = DefaultPreset
	}
	if s.CRF == 0 {
		s.CRF = DefaultCRF
	}
	return s
}

func renderArgs(rt types.RenderTimeline, outPath string, s types.RenderSettings) ([]string, error) {
	if len(rt.Segments) == 0 {
		return nil, errors.New("render timeline has no segments")
	}
	if rt.Width <= 0 || rt.Height <= 0 || rt.FPS <= 0 {
		return nil, fmt.Errorf("invalid canonical format %dx%d@%v", rt.Width, rt.Height, rt.FPS)
	}
	if rt.Audio == "" {
		return nil, errors.New("render timeline has no audio track")
	}
	inputs, graph := filterGraph(rt)

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", s.VideoCodec,
	)
	if s.Preset != "" {
		args = append(args, "-preset", s.Preset)
	}
	if s.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(s.CRF))
	}
	args = append(args,
		"-c:a", s.AudioCodec,
		"-r", fmtRate(rt.FPS),
		"-f", s.Format,
		outPath,
	)
	return args, nil
}

// filterGraph returns the ordered input files and a filter_complex graph that
// yields [vout] and [aout]. Clip inputs come first in segment order followed
// by the song.
func filterGraph(rt types.RenderTimeline) ([]string, string) {
	var (
		inputs []string
		chains []string
		labels strings.Builder
	)
	size := fmt.Sprintf("%dx%d", rt.Width, rt.Height)
	rate := fmtRate(rt.FPS)

	for i, seg := range rt.Segments {
		label := fmt.Sprintf("[v%d]", i)
		labels.WriteString(label)

		switch seg.Kind {
		case types.SegmentBlank:
			chains = append(chains, fmt.Sprintf(
				"color=c=black:s=%s:r=%s:d=%s,setsar=1,format=yuv420p%s",
				size, rate, fmtSeconds(seg.Duration), label,
			))
		default:
			idx := len(inputs)
			inputs = append(inputs, seg.Source)
			filters := []string{
				fmt.Sprintf("trim=start=0:duration=%s", fmtSeconds(seg.Duration)),
				"setpts=PTS-STARTPTS",
			}
			if seg.Resize {
				filters = append(filters, fmt.Sprintf("scale=%d:%d", rt.Width, rt.Height))
			}
			filters = append(filters, "setsar=1", "fps="+rate, "format=yuv420p")
			chains = append(chains, fmt.Sprintf("[%d:v]%s%s", idx, strings.Join(filters, ","), label))
		}
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vout]", labels.String(), len(rt.Segments)))

	audioIdx := len(inputs)
	inputs = append(inputs, rt.Audio)
	chains = append(chains, fmt.Sprintf(
		"[%d:a]atrim=start=0:duration=%s,asetpts=PTS-STARTPTS[aout]",
		audioIdx, fmtSeconds(rt.AudioDuration),
	))
	return inputs, strings.Join(chains, ";")
}

func fmtRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
