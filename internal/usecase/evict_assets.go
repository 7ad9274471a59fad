package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
	"moviestream/internal/metrics"
)

const defaultEvictSweepInterval = time.Hour

// EvictStale is the background janitor: it removes the on-disk files of
// assets nobody has watched within TTL. The metadata survives — the asset
// reverts to PENDING with zero progress, and a later start re-downloads it.
type EvictStale struct {
	Repo     ports.AssetRepository
	Store    ports.SegmentStore
	Swarm    ports.SwarmEngine
	TTL      time.Duration
	Interval time.Duration // defaults to 1h
	Now      func() time.Time
}

func (e EvictStale) Run(ctx context.Context) {
	if e.TTL <= 0 {
		return
	}
	interval := e.Interval
	if interval <= 0 {
		interval = defaultEvictSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns how many assets lost their files.
func (e EvictStale) Sweep(ctx context.Context) int {
	now := e.now()
	assets, err := e.Repo.List(ctx, domain.AssetFilter{WatchedBefore: now.Add(-e.TTL)})
	if err != nil {
		slog.Warn("eviction: list stale assets failed", slog.Any("error", err))
		return 0
	}

	evicted := 0
	for _, asset := range assets {
		if asset.Status.InProgress() {
			// A pipeline worker owns this asset right now.
			continue
		}
		if !hasFiles(asset) {
			continue
		}
		if _, err := evictAsset(ctx, e.Repo, e.Store, e.Swarm, asset, now); err != nil {
			slog.Warn("eviction failed",
				slog.String("movieId", string(asset.ID)),
				slog.Any("error", err),
			)
			continue
		}
		evicted++
	}
	if evicted > 0 {
		slog.Info("eviction sweep done", slog.Int("evicted", evicted))
	}
	return evicted
}

func (e EvictStale) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// evictAsset drops the asset's swarm membership, deletes its movie directory
// and resets the record to the pre-download state in one write.
func evictAsset(ctx context.Context, repo ports.AssetRepository, store ports.SegmentStore, swarm ports.SwarmEngine, asset domain.MovieAsset, now time.Time) (domain.MovieAsset, error) {
	if swarm != nil && asset.Magnet != "" {
		if handleID, err := swarm.Fingerprint(asset.Magnet); err == nil {
			if err := swarm.Remove(ctx, handleID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return domain.MovieAsset{}, wrapSwarm(err)
			}
		}
	}
	if err := store.Remove(asset.ID); err != nil {
		return domain.MovieAsset{}, fmt.Errorf("remove files for %s: %w", asset.ID, err)
	}

	evicted := asset.Evicted(now)
	if err := repo.Update(ctx, evicted); err != nil {
		return domain.MovieAsset{}, wrapRepo(err)
	}
	metrics.AssetsEvictedTotal.Inc()
	slog.Info("asset evicted",
		slog.String("movieId", string(asset.ID)),
		slog.Time("lastWatchedAt", asset.LastWatchedAt),
	)
	return evicted, nil
}

func hasFiles(a domain.MovieAsset) bool {
	return a.OriginalRelPath != "" || a.StreamableRelPath != ""
}
