package usecase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMarkWatchedStampsTheAsset(t *testing.T) {
	repo := newFakeAssetRepo(playableAsset("42"))
	now := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	uc := MarkWatched{Repo: repo, Now: func() time.Time { return now }}

	if err := uc.Execute(context.Background(), "42"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := repo.get("42").LastWatchedAt; !got.Equal(now) {
		t.Fatalf("LastWatchedAt = %v, want %v", got, now)
	}
}

func TestMarkWatchedWrapsRepositoryErrors(t *testing.T) {
	repo := newFakeAssetRepo()
	repo.touchErr = errors.New("connection reset")
	uc := MarkWatched{Repo: repo}

	err := uc.Execute(context.Background(), "42")
	if !errors.Is(err, ErrRepository) {
		t.Fatalf("expected ErrRepository, got %v", err)
	}
}
