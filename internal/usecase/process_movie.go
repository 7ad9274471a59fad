package usecase

import (
	"context"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
	"moviestream/internal/metrics"
)

const (
	defaultSegmentDuration = 10 * time.Second
	defaultPollInterval    = time.Second
	defaultMaxRetries      = 3
	defaultRetryCooldown   = 30 * time.Second

	// progressSafetyMargin pads the required-progress gate. Sequential mode
	// orders pieces by offset, but piece boundaries do not align with segment
	// time boundaries, so the byte range of segment N may lag the raw percent
	// slightly.
	progressSafetyMargin = 5.0

	// probeLogEvery throttles "probe not ready" logging. Early probes are
	// expected to fail until the head of the file is on disk.
	probeLogEvery = 30
)

// ProcessMovie drives one movie through the download+segment state machine:
// DOWNLOADING while waiting for metadata, DL_AND_CONVERT once the duration is
// known, PLAYABLE after segment 0, READY (or ERROR) at the end. It is the
// only writer of the asset's status, progress and paths; every transition is
// published as a single document write.
type ProcessMovie struct {
	Repo      ports.AssetRepository
	Store     ports.SegmentStore
	Swarm     ports.SwarmEngine
	Prober    ports.MediaProber
	Extractor ports.SegmentExtractor

	SegmentDuration time.Duration // defaults to 10s
	PollInterval    time.Duration // defaults to 1s
	MaxRetries      int           // extraction attempts per segment; defaults to 3
	RetryCooldown   time.Duration // wait between attempts; defaults to 30s
	Now             func() time.Time
}

// Run executes the worker for one movie. It never returns an error: every
// failure is resolved into an asset-status write, and a cancelled context
// leaves the status untouched so the boot sweep can resume the download.
func (p ProcessMovie) Run(ctx context.Context, id domain.MovieID) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline worker panic",
				slog.String("movieId", string(id)),
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			p.markError(id)
		}
	}()

	asset, err := p.Repo.Get(ctx, id)
	if err != nil {
		slog.Error("pipeline: load asset",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
		return
	}
	if asset.Status == domain.StatusReady {
		slog.Info("pipeline: asset already complete", slog.String("movieId", string(id)))
		return
	}
	if asset.Magnet == "" {
		p.fail(ctx, &asset, "no magnet on record", ErrMagnetRequired)
		return
	}

	if err := p.advance(ctx, &asset, domain.StatusDownloading); err != nil {
		p.fail(ctx, &asset, "mark downloading", err)
		return
	}

	dir, err := p.Store.Reserve(id)
	if err != nil {
		p.fail(ctx, &asset, "reserve movie directory", err)
		return
	}

	handleID, err := p.Swarm.Admit(ctx, asset.Magnet, dir)
	if err != nil {
		p.fail(ctx, &asset, "admit magnet", err)
		return
	}
	handle, err := p.Swarm.Handle(handleID)
	if err != nil {
		p.fail(ctx, &asset, "acquire swarm handle", err)
		return
	}
	lock, err := p.Swarm.Lock(handleID)
	if err != nil {
		p.fail(ctx, &asset, "acquire handle lock", err)
		return
	}

	// Metadata wait, file selection and sequential mode form one critical
	// section against the torrent.
	lock.Lock()
	if err := handle.WaitInfo(ctx); err != nil {
		lock.Unlock()
		p.fail(ctx, &asset, "wait for torrent metadata", err)
		return
	}
	file, ok := largestFile(handle.Files())
	if !ok {
		lock.Unlock()
		p.fail(ctx, &asset, "torrent has no files", domain.ErrNotFound)
		return
	}
	handle.EnableSequential(file)
	lock.Unlock()

	asset.OriginalRelPath = file.Path
	if err := p.update(ctx, &asset); err != nil {
		p.fail(ctx, &asset, "record original path", err)
		return
	}

	slog.Info("pipeline: download started",
		slog.String("movieId", string(id)),
		slog.String("file", file.Path),
		slog.Int64("length", file.Length),
	)

	// Segments already on disk from an interrupted run are not re-cut.
	seg := newSegmentProgress(p.Store.CountSegments(id, asset.OriginalRelPath))
	if seg.next > 0 && !asset.Status.Streamable() {
		if err := p.markPlayable(ctx, &asset); err != nil {
			p.fail(ctx, &asset, "restore playable state", err)
			return
		}
	}

	var (
		duration      float64
		copyStreams   bool
		probeAttempts int
	)

	ticker := time.NewTicker(p.pollInterval())
	defer ticker.Stop()

	seeding := false
	for !seeding {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		file = refreshFile(handle, file)

		lock.Lock()
		handle.AdvanceWindow(file)
		state := handle.State()
		lock.Unlock()
		seeding = state.Seeding

		progress := fileProgress(file)
		if seeding {
			progress = 100
		}
		if progress > asset.Progress {
			asset.Progress = progress
			if err := p.Repo.UpdateProgress(ctx, id, progress); err != nil {
				slog.Warn("pipeline: progress update failed",
					slog.String("movieId", string(id)),
					slog.Any("error", err),
				)
			}
		}

		if duration <= 0 {
			info, ok := p.tryProbe(ctx, id, asset.OriginalRelPath, &probeAttempts)
			if !ok {
				continue
			}
			duration = info.Duration
			copyStreams = info.BrowserCompatible()
			asset.DurationSeconds = duration
			if domain.CanTransition(asset.Status, domain.StatusConverting) {
				asset.Status = domain.StatusConverting
			}
			if err := p.update(ctx, &asset); err != nil {
				p.fail(ctx, &asset, "record media duration", err)
				return
			}
			slog.Info("pipeline: media probed",
				slog.String("movieId", string(id)),
				slog.Float64("duration", duration),
				slog.Bool("copyStreams", copyStreams),
			)
		}

		if err := p.cutAvailable(ctx, &asset, seg, duration, copyStreams, asset.Progress); err != nil {
			p.fail(ctx, &asset, "publish playable state", err)
			return
		}
	}

	// The swarm reports the torrent complete: every remaining byte is on
	// disk. Finish the segment tail without progress gating.
	if duration <= 0 {
		info, err := p.finalProbe(ctx, id, asset.OriginalRelPath)
		if err != nil {
			p.fail(ctx, &asset, "probe after download completed", err)
			return
		}
		duration = info.Duration
		copyStreams = info.BrowserCompatible()
		asset.DurationSeconds = duration
		if domain.CanTransition(asset.Status, domain.StatusConverting) {
			asset.Status = domain.StatusConverting
		}
		if err := p.update(ctx, &asset); err != nil {
			p.fail(ctx, &asset, "record media duration", err)
			return
		}
	}

	total := totalSegments(duration, p.segmentSeconds())
	for seg.next < total {
		if ctx.Err() != nil {
			return
		}
		if err := p.drainSegment(ctx, &asset, seg, duration, copyStreams); err != nil {
			p.fail(ctx, &asset, "publish playable state", err)
			return
		}
	}

	p.finish(ctx, &asset, seg, total)
}

// cutAvailable extracts, in order, every segment whose required progress has
// been reached. A failed attempt is retried on a later tick once the cooldown
// has passed; a segment that exhausts its retries is recorded as failed and
// the pipeline moves on.
func (p ProcessMovie) cutAvailable(ctx context.Context, asset *domain.MovieAsset, seg *segmentProgress, duration float64, copyStreams bool, progress float64) error {
	if duration <= 0 {
		return nil
	}
	segSec := p.segmentSeconds()
	total := totalSegments(duration, segSec)

	for seg.next < total && progress >= requiredProgress(seg.next, segSec, duration) {
		if ctx.Err() != nil {
			return nil
		}
		if !seg.lastFailure.IsZero() && p.now().Sub(seg.lastFailure) < p.retryCooldown() {
			return nil
		}
		if err := p.extractOne(ctx, asset, seg.next, duration, copyStreams); err != nil {
			seg.noteFailure(p.now())
			if seg.attempts >= p.maxRetries() {
				p.giveUpSegment(asset.ID, seg)
			}
			return nil
		}
		if err := p.segmentDone(ctx, asset, seg); err != nil {
			return err
		}
	}
	return nil
}

// drainSegment resolves the current segment during the post-download phase:
// it retries extraction up to the attempt budget, sleeping the cooldown
// between tries, then either advances or records a permanent failure.
func (p ProcessMovie) drainSegment(ctx context.Context, asset *domain.MovieAsset, seg *segmentProgress, duration float64, copyStreams bool) error {
	for {
		if err := p.extractOne(ctx, asset, seg.next, duration, copyStreams); err == nil {
			return p.segmentDone(ctx, asset, seg)
		}
		seg.noteFailure(p.now())
		if seg.attempts >= p.maxRetries() {
			p.giveUpSegment(asset.ID, seg)
			return nil
		}
		if !sleepCtx(ctx, p.retryCooldown()) {
			return nil
		}
	}
}

// extractOne cuts segment index from the (possibly still growing) original
// into its fragmented-MP4 file.
func (p ProcessMovie) extractOne(ctx context.Context, asset *domain.MovieAsset, index int, duration float64, copyStreams bool) error {
	src, err := p.Store.ResolveOriginal(asset.ID, asset.OriginalRelPath)
	if err != nil {
		metrics.SegmentExtractFailuresTotal.Inc()
		return err
	}
	dst, err := p.Store.SegmentPath(asset.ID, asset.OriginalRelPath, index)
	if err != nil {
		metrics.SegmentExtractFailuresTotal.Inc()
		return err
	}

	segSec := p.segmentSeconds()
	start := float64(index) * segSec
	length := segSec
	if remaining := duration - start; remaining < length {
		length = remaining
	}

	began := time.Now()
	err = p.Extractor.Extract(ctx, src, dst, start, length, copyStreams)
	metrics.SegmentExtractDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.SegmentExtractFailuresTotal.Inc()
		slog.Warn("pipeline: segment extraction failed",
			slog.String("movieId", string(asset.ID)),
			slog.Int("segment", index),
			slog.Any("error", err),
		)
		return err
	}
	metrics.SegmentsExtractedTotal.Inc()
	slog.Info("pipeline: segment extracted",
		slog.String("movieId", string(asset.ID)),
		slog.Int("segment", index),
	)
	return nil
}

// segmentDone advances past a successfully cut segment. Segment 0 also
// publishes the playable state.
func (p ProcessMovie) segmentDone(ctx context.Context, asset *domain.MovieAsset, seg *segmentProgress) error {
	index := seg.next
	seg.advance()
	if index == 0 && !asset.Status.Streamable() {
		return p.markPlayable(ctx, asset)
	}
	return nil
}

func (p ProcessMovie) giveUpSegment(id domain.MovieID, seg *segmentProgress) {
	slog.Error("pipeline: segment failed permanently",
		slog.String("movieId", string(id)),
		slog.Int("segment", seg.next),
		slog.Int("attempts", seg.attempts),
	)
	seg.recordFailed()
}

// markPlayable publishes segment 0 in a single write: streamable path and
// PLAYABLE status together, so readers never observe one without the other.
func (p ProcessMovie) markPlayable(ctx context.Context, asset *domain.MovieAsset) error {
	asset.StreamableRelPath = p.Store.SegmentRelPath(asset.OriginalRelPath, 0)
	if domain.CanTransition(asset.Status, domain.StatusPlayable) {
		asset.Status = domain.StatusPlayable
	}
	if err := p.update(ctx, asset); err != nil {
		return err
	}
	slog.Info("pipeline: asset playable",
		slog.String("movieId", string(asset.ID)),
		slog.String("segment", asset.StreamableRelPath),
	)
	return nil
}

// finish applies the terminal rule: no failed segments means READY; a failed
// tail with a good segment 0 stays PLAYABLE; anything else is ERROR.
func (p ProcessMovie) finish(ctx context.Context, asset *domain.MovieAsset, seg *segmentProgress, total int) {
	id := asset.ID
	switch {
	case len(seg.failed) == 0:
		asset.Progress = 100
		if domain.CanTransition(asset.Status, domain.StatusReady) {
			asset.Status = domain.StatusReady
		}
		if err := p.update(ctx, asset); err != nil {
			slog.Error("pipeline: record ready state",
				slog.String("movieId", string(id)),
				slog.Any("error", err),
			)
			return
		}
		slog.Info("pipeline: asset ready",
			slog.String("movieId", string(id)),
			slog.Int("segments", total),
		)
	case p.Store.CountSegments(id, asset.OriginalRelPath) > 0:
		if err := p.update(ctx, asset); err != nil {
			slog.Warn("pipeline: record final state",
				slog.String("movieId", string(id)),
				slog.Any("error", err),
			)
		}
		slog.Warn("pipeline: finished with failed segments",
			slog.String("movieId", string(id)),
			slog.Int("failedSegments", len(seg.failed)),
		)
	default:
		p.fail(ctx, asset, "no segment could be extracted", domain.ErrNotReady)
	}
}

// tryProbe attempts one duration probe against the partially downloaded
// original. Failures are expected until enough of the head is on disk, so
// they are only logged occasionally.
func (p ProcessMovie) tryProbe(ctx context.Context, id domain.MovieID, rel string, attempts *int) (domain.MediaInfo, bool) {
	*attempts++
	path, err := p.Store.ResolveOriginal(id, rel)
	if err != nil {
		return domain.MediaInfo{}, false
	}
	info, err := p.Prober.Probe(ctx, path)
	if err != nil || info.Duration <= 0 {
		if *attempts%probeLogEvery == 0 {
			slog.Debug("pipeline: probe not ready",
				slog.String("movieId", string(id)),
				slog.Int("attempts", *attempts),
				slog.Any("error", err),
			)
		}
		return domain.MediaInfo{}, false
	}
	return info, true
}

// finalProbe is the last chance to learn the duration once the download has
// completed. Unlike tryProbe it retries with the cooldown and reports the
// error.
func (p ProcessMovie) finalProbe(ctx context.Context, id domain.MovieID, rel string) (domain.MediaInfo, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries(); attempt++ {
		if attempt > 0 && !sleepCtx(ctx, p.retryCooldown()) {
			return domain.MediaInfo{}, ctx.Err()
		}
		path, err := p.Store.ResolveOriginal(id, rel)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := p.Prober.Probe(ctx, path)
		if err != nil {
			lastErr = err
			continue
		}
		if info.Duration <= 0 {
			lastErr = domain.ErrNotReady
			continue
		}
		return info, nil
	}
	return domain.MediaInfo{}, lastErr
}

// advance moves the asset to the target status and persists it. Already
// being there is a no-op; a transition the state machine forbids (a resumed
// worker seeing DL_AND_CONVERT, for example) keeps the current status.
func (p ProcessMovie) advance(ctx context.Context, asset *domain.MovieAsset, to domain.AssetStatus) error {
	if asset.Status == to {
		return nil
	}
	if !domain.CanTransition(asset.Status, to) {
		slog.Warn("pipeline: keeping status",
			slog.String("movieId", string(asset.ID)),
			slog.String("status", string(asset.Status)),
			slog.String("refused", string(to)),
		)
		return nil
	}
	asset.Status = to
	return p.update(ctx, asset)
}

func (p ProcessMovie) update(ctx context.Context, asset *domain.MovieAsset) error {
	asset.UpdatedAt = p.now()
	if err := p.Repo.Update(ctx, *asset); err != nil {
		return wrapRepo(err)
	}
	return nil
}

// fail resolves a pipeline failure into an ERROR status write. A cancelled
// context is shutdown, not failure: the status stays put so the boot sweep
// resumes the asset.
func (p ProcessMovie) fail(ctx context.Context, asset *domain.MovieAsset, reason string, cause error) {
	if ctx.Err() != nil {
		slog.Info("pipeline interrupted",
			slog.String("movieId", string(asset.ID)),
			slog.String("during", reason),
		)
		return
	}
	slog.Error("pipeline failed",
		slog.String("movieId", string(asset.ID)),
		slog.String("reason", reason),
		slog.Any("error", cause),
	)
	asset.Status = domain.StatusError
	asset.UpdatedAt = p.now()
	if err := p.Repo.Update(ctx, *asset); err != nil {
		slog.Error("pipeline: record failure",
			slog.String("movieId", string(asset.ID)),
			slog.Any("error", err),
		)
	}
}

// markError is the panic path: the worker context may be gone, so the write
// gets its own deadline.
func (p ProcessMovie) markError(id domain.MovieID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	asset, err := p.Repo.Get(ctx, id)
	if err != nil {
		slog.Error("pipeline: load asset after panic",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
		return
	}
	asset.Status = domain.StatusError
	asset.UpdatedAt = p.now()
	if err := p.Repo.Update(ctx, asset); err != nil {
		slog.Error("pipeline: record panic failure",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
	}
}

func (p ProcessMovie) segmentSeconds() float64 {
	return segmentSecondsOf(p.SegmentDuration)
}

func (p ProcessMovie) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return defaultPollInterval
	}
	return p.PollInterval
}

func (p ProcessMovie) maxRetries() int {
	if p.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return p.MaxRetries
}

func (p ProcessMovie) retryCooldown() time.Duration {
	if p.RetryCooldown <= 0 {
		return defaultRetryCooldown
	}
	return p.RetryCooldown
}

func (p ProcessMovie) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// segmentProgress is the worker-local cursor over the segment sequence.
// Segment next is the only one in flight; it is resolved (cut or permanently
// failed) before next+1 is considered.
type segmentProgress struct {
	next        int
	attempts    int
	lastFailure time.Time
	failed      []int
}

func newSegmentProgress(next int) *segmentProgress {
	return &segmentProgress{next: next}
}

func (s *segmentProgress) advance() {
	s.next++
	s.attempts = 0
	s.lastFailure = time.Time{}
}

func (s *segmentProgress) noteFailure(at time.Time) {
	s.attempts++
	s.lastFailure = at
}

func (s *segmentProgress) recordFailed() {
	s.failed = append(s.failed, s.next)
	s.advance()
}

// largestFile picks the download target: the biggest file in the torrent.
func largestFile(files []domain.FileRef) (domain.FileRef, bool) {
	var best domain.FileRef
	found := false
	for _, f := range files {
		if f.Length <= 0 {
			continue
		}
		if !found || f.Length > best.Length {
			best = f
			found = true
		}
	}
	return best, found
}

// refreshFile re-reads the file's completion counters from the handle.
func refreshFile(h ports.SwarmHandle, file domain.FileRef) domain.FileRef {
	for _, f := range h.Files() {
		if f.Index == file.Index {
			return f
		}
	}
	return file
}

func fileProgress(f domain.FileRef) float64 {
	if f.Length <= 0 {
		return 0
	}
	p := float64(f.BytesCompleted) / float64(f.Length) * 100
	if p > 100 {
		return 100
	}
	return p
}

// requiredProgress is the download percentage that must be reached before
// segment index can be cut: the share of the file covering [0, (index+1)·D)
// plus a safety margin, capped at 100.
func requiredProgress(index int, segmentSec, duration float64) float64 {
	if duration <= 0 {
		return 100
	}
	required := (float64(index+1)*segmentSec/duration)*100 + progressSafetyMargin
	if required > 100 {
		return 100
	}
	return required
}

func totalSegments(duration, segmentSec float64) int {
	if duration <= 0 || segmentSec <= 0 {
		return 0
	}
	return int(math.Ceil(duration / segmentSec))
}

// sleepCtx sleeps for d unless the context ends first. Reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
