package ports

import (
	"context"
	"time"

	"moviestream/internal/domain"
)

type AssetRepository interface {
	Create(ctx context.Context, a domain.MovieAsset) error
	Update(ctx context.Context, a domain.MovieAsset) error
	// UpdateProgress bumps the stored progress, never lowering it. Late
	// out-of-order writes within a download phase are absorbed here.
	UpdateProgress(ctx context.Context, id domain.MovieID, progress float64) error
	TouchLastWatched(ctx context.Context, id domain.MovieID, at time.Time) error
	Get(ctx context.Context, id domain.MovieID) (domain.MovieAsset, error)
	List(ctx context.Context, filter domain.AssetFilter) ([]domain.MovieAsset, error)
}
