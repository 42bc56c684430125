package ports

import (
	"context"

	"github.com/forPelevin/mvsync/internal/types"
)

type MediaTool interface {
	// ProbeDuration returns the playable duration in seconds (3 decimals).
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ProbeVideo(ctx context.Context, path string) (types.VideoInfo, error)
	// ExtractExcerpt writes a mono low-rate PCM wav of at most maxSeconds from
	// the start of videoPath. The caller owns outPath.
	ExtractExcerpt(ctx context.Context, videoPath, outPath string, maxSeconds int) error
	// DecodeMono decodes any audio file to mono float samples at sampleRate.
	DecodeMono(ctx context.Context, path string, sampleRate int) ([]float32, error)
	Render(ctx context.Context, rt types.RenderTimeline, outPath string, settings types.RenderSettings) error
}
