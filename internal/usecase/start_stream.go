package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// StartStream upserts the movie asset and hands it to a pipeline worker.
// Starting is idempotent: an asset that is already downloading, converting or
// streamable is returned as-is without spawning a second worker.
type StartStream struct {
	Repo     ports.AssetRepository
	Store    ports.SegmentStore
	Swarm    ports.SwarmEngine
	Pipeline *PipelineManager
	// EvictAfter is how long an asset may go unwatched before a new start
	// throws away its files and re-downloads. Zero disables the check.
	EvictAfter time.Duration
	Now        func() time.Time
}

type StartStreamInput struct {
	MovieID domain.MovieID
	Magnet  string
}

func (uc StartStream) Execute(ctx context.Context, input StartStreamInput) (domain.MovieAsset, error) {
	id := input.MovieID
	if id == "" {
		return domain.MovieAsset{}, fmt.Errorf("%w: movie id is required", domain.ErrInvalidInput)
	}
	magnet := strings.TrimSpace(input.Magnet)
	if magnet == "" {
		return domain.MovieAsset{}, ErrMagnetRequired
	}

	now := uc.now()
	created := false

	asset, err := uc.Repo.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		asset = domain.MovieAsset{
			ID:        id,
			Magnet:    magnet,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
		if createErr := uc.Repo.Create(ctx, asset); createErr != nil {
			if !errors.Is(createErr, domain.ErrAlreadyExists) {
				return domain.MovieAsset{}, wrapRepo(createErr)
			}
			// Lost a concurrent first start; use the row the winner wrote.
			asset, err = uc.Repo.Get(ctx, id)
			if err != nil {
				return domain.MovieAsset{}, wrapRepo(err)
			}
			created = false
		}
	case err != nil:
		return domain.MovieAsset{}, wrapRepo(err)
	}

	// A long-unwatched asset loses its files before anything else happens;
	// the download then starts from scratch.
	if uc.EvictAfter > 0 && asset.StaleAt(now, uc.EvictAfter) && hasFiles(asset) {
		evicted, err := evictAsset(ctx, uc.Repo, uc.Store, uc.Swarm, asset, now)
		if err != nil {
			return domain.MovieAsset{}, err
		}
		asset = evicted
	}

	if asset.Status.InProgress() || asset.Status.Streamable() {
		return asset, nil
	}

	// PENDING or ERROR: adopt the submitted magnet and spawn the worker.
	if !created {
		asset.Magnet = magnet
		asset.UpdatedAt = now
		if err := uc.Repo.Update(ctx, asset); err != nil {
			return domain.MovieAsset{}, wrapRepo(err)
		}
	}

	if uc.Pipeline != nil {
		uc.Pipeline.Launch(id)
	}
	return asset, nil
}

func (uc StartStream) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now().UTC()
}
