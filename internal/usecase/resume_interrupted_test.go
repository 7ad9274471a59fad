package usecase

import (
	"context"
	"testing"
	"time"

	"moviestream/internal/domain"
)

func TestResumeInterruptedRelaunchesMidPipelineAssets(t *testing.T) {
	downloading := pendingAsset("a")
	downloading.Status = domain.StatusDownloading
	converting := pendingAsset("b")
	converting.Status = domain.StatusConverting
	finished := pendingAsset("c")
	finished.Status = domain.StatusReady
	failed := pendingAsset("d")
	failed.Status = domain.StatusError

	worker := &recordingWorker{}
	pm := NewPipelineManager(context.Background(), worker, 4)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pm.Shutdown(ctx)
	})

	uc := ResumeInterrupted{
		Repo:     newFakeAssetRepo(downloading, converting, finished, failed),
		Pipeline: pm,
	}
	resumed, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resumed != 2 {
		t.Fatalf("resumed = %d, want 2", resumed)
	}

	waitFor(t, "relaunched workers", func() bool { return worker.count() == 2 })
	seen := map[domain.MovieID]bool{}
	for _, id := range worker.ran() {
		seen[id] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("worker ran %v, want movies a and b", worker.ran())
	}
}

func TestResumeInterruptedNothingToDo(t *testing.T) {
	ready := pendingAsset("c")
	ready.Status = domain.StatusReady

	worker := &recordingWorker{}
	pm := NewPipelineManager(context.Background(), worker, 2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pm.Shutdown(ctx)
	})

	uc := ResumeInterrupted{Repo: newFakeAssetRepo(ready), Pipeline: pm}
	resumed, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("resumed = %d, want 0", resumed)
	}
}
