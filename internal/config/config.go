package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is picked up from the working directory when no path is given.
const DefaultFile = "mvsync.yaml"

type Config struct {
	Concurrency int          `yaml:"concurrency"`
	ScratchDir  string       `yaml:"scratch_dir"`
	FFmpeg      FFmpegConfig `yaml:"ffmpeg"`
	Render      RenderConfig `yaml:"render"`
	Log         LogConfig    `yaml:"log"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type RenderConfig struct {
	Format     string `yaml:"format"`
	VideoCodec string `yaml:"video_codec"`
	AudioCodec string `yaml:"audio_codec"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Concurrency: 4,
		ScratchDir:  ".cache",
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Render: RenderConfig{
			Format:     "mp4",
			VideoCodec: "libx264",
			AudioCodec: "aac",
			Preset:     "veryfast",
			CRF:        18,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. An empty path falls back to
// DefaultFile in the working directory, and a missing default file is not
// an error. An explicitly named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays MVSYNC_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("MVSYNC_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MVSYNC_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	setString(&c.ScratchDir, getenv("MVSYNC_SCRATCH_DIR"))
	setString(&c.FFmpeg.FFmpegPath, getenv("MVSYNC_FFMPEG"))
	setString(&c.FFmpeg.FFprobePath, getenv("MVSYNC_FFPROBE"))
	setString(&c.Log.Level, getenv("MVSYNC_LOG_LEVEL"))
	setString(&c.Log.Format, getenv("MVSYNC_LOG_FORMAT"))
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
