package usecase

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"moviestream/internal/domain"
	"moviestream/internal/metrics"
)

const defaultMaxWorkers = 4

// PipelineWorker drives one movie through the download+segment state
// machine. ProcessMovie is the production implementation.
type PipelineWorker interface {
	Run(ctx context.Context, id domain.MovieID)
}

// PipelineManager owns the background workers. Launches are deduplicated per
// movie id, so two concurrent starts of the same movie run one worker, and
// the semaphore bounds how many workers download at the same time; the rest
// queue without blocking the caller.
type PipelineManager struct {
	worker PipelineWorker
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[domain.MovieID]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewPipelineManager(ctx context.Context, worker PipelineWorker, maxWorkers int) *PipelineManager {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(ctx)
	return &PipelineManager{
		worker: worker,
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[domain.MovieID]struct{}),
	}
}

// Launch starts a worker for the movie unless one is already active (queued
// or running). It never blocks; the worker acquires its slot in the
// background. Reports whether a new worker was scheduled.
func (pm *PipelineManager) Launch(id domain.MovieID) bool {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return false
	}
	if _, exists := pm.active[id]; exists {
		pm.mu.Unlock()
		return false
	}
	pm.active[id] = struct{}{}
	pm.wg.Add(1)
	pm.mu.Unlock()

	go pm.run(id)
	return true
}

func (pm *PipelineManager) run(id domain.MovieID) {
	defer pm.wg.Done()
	defer func() {
		pm.mu.Lock()
		delete(pm.active, id)
		pm.mu.Unlock()
	}()

	if err := pm.sem.Acquire(pm.ctx, 1); err != nil {
		// Shutdown before the worker got a slot.
		return
	}
	defer pm.sem.Release(1)

	metrics.ActivePipelines.Inc()
	defer metrics.ActivePipelines.Dec()

	pm.worker.Run(pm.ctx, id)
}

// Running reports whether a worker for the movie is queued or running.
func (pm *PipelineManager) Running(id domain.MovieID) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	_, exists := pm.active[id]
	return exists
}

func (pm *PipelineManager) ActiveCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.active)
}

// Shutdown refuses new launches, cancels running workers and waits for them
// to settle or for ctx to end, whichever comes first.
func (pm *PipelineManager) Shutdown(ctx context.Context) error {
	pm.mu.Lock()
	pm.closed = true
	pm.mu.Unlock()
	pm.cancel()

	done := make(chan struct{})
	go func() {
		pm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
