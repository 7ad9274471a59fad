package usecase

import (
	"context"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// MarkWatched stamps the asset after a successful stream response. The
// timestamp is what keeps an asset's files alive: eviction only touches
// assets unwatched past the TTL.
type MarkWatched struct {
	Repo ports.AssetRepository
	Now  func() time.Time
}

func (uc MarkWatched) Execute(ctx context.Context, id domain.MovieID) error {
	now := time.Now().UTC()
	if uc.Now != nil {
		now = uc.Now()
	}
	if err := uc.Repo.TouchLastWatched(ctx, id, now); err != nil {
		return wrapRepo(err)
	}
	return nil
}
