package usecase

import (
	"context"
	"log/slog"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
)

// ResumeInterrupted relaunches workers for assets a previous process left
// mid-pipeline. Without it a restart would strand DOWNLOADING and
// DL_AND_CONVERT assets forever, because start requests never respawn
// in-progress work. Runs once at boot.
type ResumeInterrupted struct {
	Repo     ports.AssetRepository
	Pipeline *PipelineManager
}

func (uc ResumeInterrupted) Execute(ctx context.Context) (int, error) {
	assets, err := uc.Repo.List(ctx, domain.AssetFilter{
		Statuses: []domain.AssetStatus{domain.StatusDownloading, domain.StatusConverting},
	})
	if err != nil {
		return 0, wrapRepo(err)
	}

	resumed := 0
	for _, asset := range assets {
		if uc.Pipeline.Launch(asset.ID) {
			resumed++
			slog.Info("resuming interrupted download",
				slog.String("movieId", string(asset.ID)),
				slog.String("status", string(asset.Status)),
			)
		}
	}
	return resumed, nil
}
