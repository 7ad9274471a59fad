package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// StatusView is the read model behind the status endpoint: the asset record
// plus on-disk segment availability. Segment fields are only computed once
// the asset is streamable.
type StatusView struct {
	Asset domain.MovieAsset
	// SegmentInfo reports whether the fields below carry data.
	SegmentInfo       bool
	AvailableSegments int
	TotalDuration     float64
	SegmentDuration   float64
}

type GetAssetStatus struct {
	Repo            ports.AssetRepository
	Store           ports.SegmentStore
	SegmentDuration time.Duration
}

func (uc GetAssetStatus) Execute(ctx context.Context, id domain.MovieID) (StatusView, error) {
	if id == "" {
		return StatusView{}, fmt.Errorf("%w: movie id is required", domain.ErrInvalidInput)
	}

	asset, err := uc.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StatusView{}, err
		}
		return StatusView{}, wrapRepo(err)
	}

	view := StatusView{Asset: asset}
	if asset.Status.Streamable() {
		view.SegmentInfo = true
		view.AvailableSegments = uc.Store.CountSegments(id, asset.OriginalRelPath)
		view.TotalDuration = asset.DurationSeconds
		view.SegmentDuration = segmentSecondsOf(uc.SegmentDuration)
	}
	return view, nil
}

func segmentSecondsOf(d time.Duration) float64 {
	if d <= 0 {
		return defaultSegmentDuration.Seconds()
	}
	return d.Seconds()
}
