package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "mvsync <project-dir>",
		Short:        "Sync artist clips to a song and fill the gaps with b-roll",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "out", "Output directory")
	root.Flags().String("song", "", "Song file (default: first .mp3/.wav in the project dir)")
	root.Flags().String("artist-dir", "", "Artist clips directory (default: <project>/artist_clips)")
	root.Flags().String("broll-dir", "", "B-roll clips directory (default: <project>/broll_clips)")
	root.Flags().String("analysis", "", "Song analysis JSON (duration, bpm, features)")
	root.Flags().Float64("tempo", 0, "Song tempo in BPM")
	root.Flags().Bool("edl-only", false, "Write edl.json and skip rendering")
	root.Flags().String("config", "", "YAML settings file (default: ./mvsync.yaml if present)")
	root.Flags().Int("concurrency", 0, "Clips processed in parallel")
	root.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	root.Flags().String("log-format", "", "Log format: console or json")
	root.Flags().Bool("progress", false, "Show progress bars")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
