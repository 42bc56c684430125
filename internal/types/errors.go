package types

import "errors"

var (
	// ErrMediaUnreadable: the duration or stream probe failed on a file.
	ErrMediaUnreadable = errors.New("media unreadable")
	// ErrAudioExtractionFailed: no audio track or transcode failure; the clip is skipped.
	ErrAudioExtractionFailed = errors.New("audio extraction failed")
	ErrInvalidAlignmentInput = errors.New("invalid alignment input")
	// ErrNoPlacements: nothing to render.
	ErrNoPlacements = errors.New("no placements")
	ErrRenderFailed = errors.New("render failed")
)
