package usecase

import (
	"context"
	"errors"
	"fmt"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// ResolveSegment maps a stream request to the segment file on disk, applying
// the streaming preconditions: the asset must be PLAYABLE or READY, and the
// segment must sit inside the contiguous run starting at 0. A stray file
// beyond a gap is never served.
type ResolveSegment struct {
	Repo  ports.AssetRepository
	Store ports.SegmentStore
}

type ResolvedSegment struct {
	Asset domain.MovieAsset
	Index int
	Path  string
}

func (uc ResolveSegment) Execute(ctx context.Context, id domain.MovieID, index int) (ResolvedSegment, error) {
	if id == "" {
		return ResolvedSegment{}, fmt.Errorf("%w: movie id is required", domain.ErrInvalidInput)
	}
	if index < 0 {
		return ResolvedSegment{}, fmt.Errorf("%w: segment index must not be negative", domain.ErrInvalidInput)
	}

	asset, err := uc.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ResolvedSegment{}, err
		}
		return ResolvedSegment{}, wrapRepo(err)
	}
	if !asset.Status.Streamable() {
		return ResolvedSegment{}, domain.NotReadyError{Status: asset.Status}
	}

	if high := uc.Store.CountSegments(id, asset.OriginalRelPath); index >= high {
		return ResolvedSegment{}, domain.SegmentNotFoundError{Index: index}
	}

	path, err := uc.Store.SegmentPath(id, asset.OriginalRelPath, index)
	if err != nil {
		return ResolvedSegment{}, err
	}
	return ResolvedSegment{Asset: asset, Index: index, Path: path}, nil
}
