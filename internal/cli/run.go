package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/mvsync/internal/config"
	"github.com/forPelevin/mvsync/internal/logging"
	"github.com/forPelevin/mvsync/internal/pipeline"
	"github.com/forPelevin/mvsync/internal/types"
)

func run(cmd *cobra.Command, project string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := settings.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flags.Changed("concurrency") {
		settings.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("log-level") {
		settings.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		settings.Log.Format, _ = flags.GetString("log-format")
	}

	log, err := logging.New(cmd.ErrOrStderr(), settings.Log.Level, settings.Log.Format)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	absProject, err := filepath.Abs(project)
	if err != nil {
		return err
	}
	outDir, _ := flags.GetString("out")
	song, _ := flags.GetString("song")
	artistDir, _ := flags.GetString("artist-dir")
	brollDir, _ := flags.GetString("broll-dir")
	analysis, _ := flags.GetString("analysis")
	tempo, _ := flags.GetFloat64("tempo")
	edlOnly, _ := flags.GetBool("edl-only")
	showProgress, _ := flags.GetBool("progress")

	cfg := pipeline.Config{
		Project:     absProject,
		Song:        song,
		ArtistDir:   artistDir,
		BRollDir:    brollDir,
		Analysis:    analysis,
		Tempo:       tempo,
		OutDir:      outDir,
		EDLOnly:     edlOnly,
		Concurrency: settings.Concurrency,
		CacheDir:    settings.ScratchDir,

		FFmpegPath:  settings.FFmpeg.FFmpegPath,
		FFprobePath: settings.FFmpeg.FFprobePath,
		Render: types.RenderSettings{
			Format:     settings.Render.Format,
			VideoCodec: settings.Render.VideoCodec,
			AudioCodec: settings.Render.AudioCodec,
			Preset:     settings.Render.Preset,
			CRF:        settings.Render.CRF,
		},
		Log: log,
	}

	cfg, err = cfg.Resolve()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var bars *progressBars
	if showProgress {
		bars = newProgressBars(cmd.OutOrStdout())
		cfg.Progress = bars.stage
	}
	res, err := pipeline.Run(ctx, cfg)
	if bars != nil {
		bars.wait()
	}

	out := cmd.OutOrStdout()
	if res.EDLPath != "" {
		fmt.Fprintf(out, "edl: %s (%d clips)\n", res.EDLPath, res.EDL.TotalClips)
	}
	if err != nil {
		if errors.Is(err, types.ErrNoPlacements) {
			return errors.New("nothing to render: no artist or b-roll clip could be placed")
		}
		return err
	}
	if res.VideoPath != "" {
		fmt.Fprintf(out, "video: %s\n", res.VideoPath)
	}
	return nil
}
