package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forPelevin/mvsync/internal/ports"
	"github.com/forPelevin/mvsync/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/mvsync/internal/types"
	"github.com/forPelevin/mvsync/internal/usecase"
)

const (
	ArtistDirName = "artist_clips"
	BRollDirName  = "broll_clips"
	EDLFile       = "edl.json"
	VideoFile     = "music_video"
)

var (
	songExts = map[string]bool{".mp3": true, ".wav": true}
	clipExts = map[string]bool{".mp4": true, ".mov": true, ".avi": true}
)

type Config struct {
	// Project is the directory holding the song, artist_clips/ and broll_clips/.
	// Song, ArtistDir and BRollDir override the conventional locations.
	Project   string
	Song      string
	ArtistDir string
	BRollDir  string

	// Analysis is an optional JSON file from the audio analysis step.
	Analysis string
	// Tempo overrides the analysis bpm when > 0.
	Tempo float64

	OutDir      string
	EDLOnly     bool
	Concurrency int

	// CacheDir is the base directory for scratch excerpts.
	// If empty, defaults to ".cache".
	CacheDir string

	FFmpegPath  string
	FFprobePath string
	Render      types.RenderSettings

	Log      zerolog.Logger
	Progress usecase.ProgressFunc
}

type Result struct {
	RunDir string
	EDL    types.EditDecisionList
	// EDLPath is empty when no EDL could be assembled.
	EDLPath string
	// VideoPath is empty for EDL-only runs.
	VideoPath string
}

// Resolve fills the conventional project locations for anything not set
// explicitly.
func (c Config) Resolve() (Config, error) {
	if c.ArtistDir == "" && c.Project != "" {
		c.ArtistDir = filepath.Join(c.Project, ArtistDirName)
	}
	if c.BRollDir == "" && c.Project != "" {
		c.BRollDir = filepath.Join(c.Project, BRollDirName)
	}
	if c.Song == "" && c.Project != "" {
		song, err := findSong(c.Project)
		if err != nil {
			return c, err
		}
		c.Song = song
	}
	if c.CacheDir == "" {
		c.CacheDir = ".cache"
	}
	if c.OutDir == "" {
		c.OutDir = "out"
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Song == "" {
		return errors.New("song is empty")
	}
	if !songExts[strings.ToLower(filepath.Ext(c.Song))] {
		return fmt.Errorf("song %s: want a .mp3 or .wav file", c.Song)
	}
	if st, err := os.Stat(c.Song); err != nil {
		return fmt.Errorf("stat song: %w", err)
	} else if st.IsDir() {
		return fmt.Errorf("song %s is a directory", c.Song)
	}
	if !isDir(c.ArtistDir) && !isDir(c.BRollDir) {
		return fmt.Errorf("no clip directories: %q and %q do not exist", c.ArtistDir, c.BRollDir)
	}
	if c.Analysis != "" {
		if _, err := os.Stat(c.Analysis); err != nil {
			return fmt.Errorf("stat analysis: %w", err)
		}
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.Tempo < 0 {
		return errors.New("tempo must be >= 0")
	}
	return nil
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	log := cfg.Log

	media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, log)
	uc := usecase.New(usecase.Deps{
		Media: media,
		Log:   log,
	})

	song, err := songMeta(cfg)
	if err != nil {
		return Result{}, err
	}
	artist, err := listClips(cfg.ArtistDir)
	if err != nil {
		return Result{}, fmt.Errorf("artist clips: %w", err)
	}
	broll, err := listClips(cfg.BRollDir)
	if err != nil {
		return Result{}, fmt.Errorf("b-roll clips: %w", err)
	}

	runID := uuid.NewString()
	scratch := filepath.Join(cfg.CacheDir, "runs", runID)
	log.Debug().Str("scratch", scratch).Msg("preparing workspace")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Result{}, err
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("scratch", scratch).Msg("scratch cleanup failed")
		}
	}()

	runOutDir := buildRunOutDir(cfg.OutDir, cfg.Song, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return Result{}, err
	}
	log.Info().Str("run_id", runID).Str("dir", runOutDir).Msg("output run dir")

	res := Result{RunDir: runOutDir}
	in := usecase.Input{
		Song:        song,
		ArtistClips: artist,
		BRollClips:  broll,
		ScratchDir:  scratch,
		Concurrency: cfg.Concurrency,
		Render:      cfg.Render,
		Progress:    cfg.Progress,
	}
	if !cfg.EDLOnly {
		in.OutPath = filepath.Join(runOutDir, VideoFile+"."+videoExt(cfg.Render.Format))
	}

	out, runErr := uc.Run(ctx, in)
	res.EDL = out.EDL
	if out.EDL.TotalClips > 0 {
		path, err := writeEDL(runOutDir, out.EDL)
		if err != nil {
			return res, errors.Join(runErr, err)
		}
		res.EDLPath = path
		log.Info().Int("clips", out.EDL.TotalClips).Str("path", path).Msg("edl written")
	}
	if runErr != nil {
		return res, runErr
	}
	res.VideoPath = out.Output
	return res, nil
}

func songMeta(cfg Config) (types.SongMeta, error) {
	song := types.SongMeta{Ref: cfg.Song}
	if cfg.Analysis != "" {
		a, err := loadAnalysis(cfg.Analysis)
		if err != nil {
			return types.SongMeta{}, err
		}
		song.Duration = a.Duration
		song.Tempo = a.Tempo
		song.Features = a.Features
	}
	if cfg.Tempo > 0 {
		song.Tempo = cfg.Tempo
	}
	return song, nil
}

type analysis struct {
	Duration float64
	Tempo    float64
	Features json.RawMessage
}

// loadAnalysis reads duration and bpm from an analysis document. Every other
// top-level field is kept as features.
func loadAnalysis(path string) (analysis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return analysis{}, fmt.Errorf("read analysis: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return analysis{}, fmt.Errorf("parse analysis %s: %w", path, err)
	}

	var a analysis
	if raw, ok := fields["duration"]; ok {
		if err := json.Unmarshal(raw, &a.Duration); err != nil {
			return analysis{}, fmt.Errorf("analysis duration: %w", err)
		}
		delete(fields, "duration")
	}
	if raw, ok := fields["bpm"]; ok {
		if err := json.Unmarshal(raw, &a.Tempo); err != nil {
			return analysis{}, fmt.Errorf("analysis bpm: %w", err)
		}
		delete(fields, "bpm")
	}
	if len(fields) > 0 {
		feat, err := json.Marshal(fields)
		if err != nil {
			return analysis{}, fmt.Errorf("analysis features: %w", err)
		}
		a.Features = feat
	}
	return a, nil
}

func writeEDL(dir string, edl types.EditDecisionList) (string, error) {
	b, err := json.MarshalIndent(edl, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal edl: %w", err)
	}
	path := filepath.Join(dir, EDLFile)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// listClips returns the video files in dir sorted by name. A missing dir
// yields no clips.
func listClips(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !clipExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

func findSong(project string) (string, error) {
	entries, err := os.ReadDir(project)
	if err != nil {
		return "", fmt.Errorf("read project: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && songExts[strings.ToLower(filepath.Ext(e.Name()))] {
			return filepath.Join(project, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no .mp3 or .wav song in %s", project)
}

func videoExt(format string) string {
	switch format {
	case "", "mp4":
		return "mp4"
	case "matroska":
		return "mkv"
	default:
		return format
	}
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func buildRunOutDir(outRoot, song string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(song), filepath.Ext(song))
	name = normalizePathSegment(name)
	if name == "" {
		name = "song"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", song, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MediaTool = (*ffmpeg.Adapter)(nil)
