//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"testing"
)

func probeDurationSeconds(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// ffmpegFixture runs ffmpeg with args and fails the test on error.
func ffmpegFixture(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

// writeSong writes seconds of seeded pink noise as a mono wav.
func writeSong(t *testing.T, path string, seconds int) {
	t.Helper()
	ffmpegFixture(t,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anoisesrc=d=%d:c=pink:r=44100:a=0.5:seed=7", seconds),
		"-ac", "1",
		path,
	)
}

// writeArtistClip muxes song[from, from+seconds) under a color video.
func writeArtistClip(t *testing.T, song, path string, from, seconds float64) {
	t.Helper()
	ffmpegFixture(t,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=1280x720:r=30:d=%g", seconds),
		"-ss", strconv.FormatFloat(from, 'f', 3, 64),
		"-t", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", song,
		"-map", "0:v", "-map", "1:a",
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		path,
	)
}

// writeBRollClip writes a silent color clip.
func writeBRollClip(t *testing.T, path, color, size string, seconds int) {
	t.Helper()
	ffmpegFixture(t,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:r=25:d=%d", color, size, seconds),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
}
