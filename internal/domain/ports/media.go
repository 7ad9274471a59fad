package ports

import (
	"context"

	"moviestream/internal/domain"
)

type MediaProber interface {
	Probe(ctx context.Context, path string) (domain.MediaInfo, error)
}

// SegmentExtractor cuts a fixed-duration slice of the source into a
// self-contained fragmented-MP4 file at dst. With copyStreams the source
// streams are copied verbatim; otherwise video is re-encoded to H.264 and
// audio to AAC. dst is never left behind on failure.
type SegmentExtractor interface {
	Extract(ctx context.Context, src, dst string, startSec, durationSec float64, copyStreams bool) error
}
