package types

import (
	"encoding/json"
	"math"
)

type Kind string

const (
	KindArtist Kind = "artist"
	KindBRoll  Kind = "broll"
)

// Placement binds a source clip to [StartTime, EndTime) on the output timeline.
type Placement struct {
	Filename  string  `json:"filename"`
	SourceRef string  `json:"clip_path"`
	Kind      Kind    `json:"type"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
}

// Gap is a half-open interval [Start, End) not covered by any placement.
type Gap struct {
	Start float64
	End   float64
}

func (g Gap) Duration() float64 { return g.End - g.Start }

// SongMeta is what the audio analysis collaborator supplies about the master song.
// Features is forwarded into the EDL without interpretation.
type SongMeta struct {
	Ref      string
	Duration float64
	Tempo    float64
	Features json.RawMessage
}

type EditDecisionList struct {
	SongRef      string          `json:"song_path"`
	SongDuration float64         `json:"song_duration"`
	Tempo        float64         `json:"bpm"`
	TotalClips   int             `json:"total_clips"`
	Placements   []Placement     `json:"placements"`
	Features     json.RawMessage `json:"features,omitempty"`
}

// Clip is a b-roll pool entry with its probed duration.
type Clip struct {
	Path     string
	Duration float64
}

type VideoInfo struct {
	Path     string
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
}

type SegmentKind string

const (
	SegmentClip  SegmentKind = "clip"
	SegmentBlank SegmentKind = "blank"
)

// Segment is one piece of the rendered video track. Clip segments play
// Source from 0 for Duration seconds; blank segments are black frames.
type Segment struct {
	Kind     SegmentKind
	Source   string
	Duration float64
	Resize   bool
}

// RenderTimeline is the contiguous video program plus its bound audio track.
type RenderTimeline struct {
	Width    int
	Height   int
	FPS      float64
	Segments []Segment

	Audio         string
	AudioDuration float64
}

// VideoDuration is the summed length of all segments.
func (rt RenderTimeline) VideoDuration() float64 {
	var total float64
	for _, s := range rt.Segments {
		total += s.Duration
	}
	return total
}

// RenderSettings are the sink parameters passed through to the encoder.
type RenderSettings struct {
	Format     string
	VideoCodec string
	AudioCodec string
	Preset     string
	CRF        int
}

// Round3 rounds seconds to millisecond precision.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
