package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// SegmentListing is the segments endpoint's read model.
type SegmentListing struct {
	Segments        []domain.Segment `json:"available_segments"`
	SegmentDuration float64          `json:"segment_duration"`
	TotalSegments   int              `json:"total_segments"`
	TotalDuration   float64          `json:"total_duration"`
}

type ListAssetSegments struct {
	Repo            ports.AssetRepository
	Store           ports.SegmentStore
	SegmentDuration time.Duration
}

func (uc ListAssetSegments) Execute(ctx context.Context, id domain.MovieID) (SegmentListing, error) {
	if id == "" {
		return SegmentListing{}, fmt.Errorf("%w: movie id is required", domain.ErrInvalidInput)
	}

	asset, err := uc.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SegmentListing{}, err
		}
		return SegmentListing{}, wrapRepo(err)
	}
	if !asset.Status.Streamable() {
		return SegmentListing{}, domain.NotReadyError{Status: asset.Status}
	}

	segs, err := uc.Store.ListSegments(id, asset.OriginalRelPath)
	if err != nil {
		return SegmentListing{}, fmt.Errorf("list segments for %s: %w", id, err)
	}
	if segs == nil {
		segs = []domain.Segment{}
	}

	return SegmentListing{
		Segments:        segs,
		SegmentDuration: segmentSecondsOf(uc.SegmentDuration),
		TotalSegments:   len(segs),
		TotalDuration:   asset.DurationSeconds,
	}, nil
}
