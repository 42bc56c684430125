package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/forPelevin/mvsync/internal/logging"
	"github.com/forPelevin/mvsync/internal/types"
)

// ExcerptSampleRate is the rate excerpts are written at for correlation.
const ExcerptSampleRate = 11025

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger
}

func New(ffmpegPath, ffprobePath string, log zerolog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		log:     logging.WithComponent(log, "ffmpeg"),
	}
}

// ProbeDuration reads the container duration and falls back to decoding the
// whole file when the container does not carry one.
func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	sec, probeErr := a.probeFormatDuration(ctx, path)
	if probeErr == nil {
		return types.Round3(sec), nil
	}
	a.log.Debug().Str("path", path).Err(probeErr).Msg("container duration unavailable, decoding")

	sec, decodeErr := a.decodeDuration(ctx, path)
	if decodeErr != nil {
		return 0, fmt.Errorf("%w: %s: %w", types.ErrMediaUnreadable, path, errors.Join(probeErr, decodeErr))
	}
	return types.Round3(sec), nil
}

func (a *Adapter) probeFormatDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, fmt.Errorf("unusable duration %q", s)
	}
	return sec, nil
}

func (a *Adapter) decodeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner", "-nostats",
		"-i", path,
		"-progress", "pipe:1",
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg decode duration: %w\n%s", err, stderr.String())
	}
	sec, ok := lastProgressTime(out)
	if !ok {
		return 0, fmt.Errorf("ffmpeg decode duration: no progress reported for %s", path)
	}
	return sec, nil
}

// lastProgressTime returns the final out_time of an ffmpeg -progress report.
func lastProgressTime(report []byte) (float64, bool) {
	var (
		sec   float64
		found bool
	)
	sc := bufio.NewScanner(bytes.NewReader(report))
	for sc.Scan() {
		v, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "out_time=")
		if !ok {
			continue
		}
		if t, err := parseClock(v); err == nil {
			sec, found = t, true
		}
	}
	return sec, found && sec > 0
}

// parseClock parses HH:MM:SS.ffffff.
func parseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		total = total*60 + v
	}
	if total < 0 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return total, nil
}

// ExtractExcerpt writes the first maxSeconds of the clip's audio as mono
// 16-bit PCM at ExcerptSampleRate.
func (a *Adapter) ExtractExcerpt(ctx context.Context, videoPath, outPath string, maxSeconds int) error {
	if maxSeconds <= 0 {
		maxSeconds = 30
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-t", strconv.Itoa(maxSeconds),
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(ExcerptSampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg extract audio: %w\n%s", types.ErrAudioExtractionFailed, err, string(b))
	}
	return nil
}

// DecodeMono decodes path to mono float32 samples at sampleRate.
func (a *Adapter) DecodeMono(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner", "-v", "error",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg decode %s: %w\n%s", types.ErrMediaUnreadable, path, err, stderr.String())
	}
	return pcmFloat32(raw)
}

func pcmFloat32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: truncated f32le stream (%d bytes)", types.ErrMediaUnreadable, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func (a *Adapter) ProbeVideo(ctx context.Context, path string) (types.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: ffprobe streams %s: %w\n%s", types.ErrMediaUnreadable, path, err, stderr.String())
	}
	info, err := parseProbe(b)
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("%w: %s: %w", types.ErrMediaUnreadable, path, err)
	}
	info.Path = path
	return info, nil
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func parseProbe(b []byte) (types.VideoInfo, error) {
	var pr probeResult
	if err := json.Unmarshal(b, &pr); err != nil {
		return types.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var info types.VideoInfo
	if d, err := strconv.ParseFloat(pr.Format.Duration, 64); err == nil {
		info.Duration = types.Round3(d)
	}
	video := false
	for _, s := range pr.Streams {
		switch s.CodecType {
		case "video":
			if video {
				continue
			}
			video = true
			info.Width, info.Height = s.Width, s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
			if info.FPS <= 0 {
				info.FPS = parseFrameRate(s.AvgFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !video || info.Width <= 0 || info.Height <= 0 {
		return types.VideoInfo{}, errors.New("no video stream")
	}
	return info, nil
}

// parseFrameRate parses ffprobe rationals such as "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
