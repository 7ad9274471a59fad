package anacrolix

import (
	"context"
	"time"

	"github.com/anacrolix/torrent"

	"moviestream/internal/domain"
)

// Handle wraps one admitted torrent.
type Handle struct {
	manager *Manager
	torrent *torrent.Torrent
	id      domain.HandleID
	addedAt time.Time
}

func (h *Handle) ID() domain.HandleID {
	return h.id
}

// WaitInfo blocks until torrent metadata is available or the context is done.
// Zero-peer magnets never resolve, so callers always pass a deadline.
func (h *Handle) WaitInfo(ctx context.Context) error {
	if h.torrent == nil {
		return ErrHandleNotFound
	}
	select {
	case <-h.torrent.GotInfo():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) Files() []domain.FileRef {
	return mapFiles(h.torrent)
}

// EnableSequential marks every piece of the torrent wanted, then boosts the
// head of the given file so bytes arrive roughly in playback order. The full
// DownloadAll keeps the torrent draining to 100% even after playback-order
// pieces are done.
func (h *Handle) EnableSequential(file domain.FileRef) {
	t := h.torrent
	if !torrentInfoReady(t) {
		return
	}
	t.DownloadAll()
	h.manager.applyWindow(t, h.id, file)
}

// AdvanceWindow re-slides the high-priority window to the file's download
// frontier. Called on every progress poll.
func (h *Handle) AdvanceWindow(file domain.FileRef) {
	t := h.torrent
	if !torrentInfoReady(t) {
		return
	}
	h.manager.applyWindow(t, h.id, file)
}

// State samples whole-torrent progress. Progress is a percentage in [0, 100].
func (h *Handle) State() domain.HandleState {
	now := time.Now().UTC()
	state := domain.HandleState{ID: h.id}
	if !h.addedAt.IsZero() {
		state.ActiveSeconds = now.Sub(h.addedAt).Seconds()
	}

	t := h.torrent
	if t == nil {
		return state
	}
	stats := t.Stats()
	state.Peers = stats.ActivePeers
	if !torrentInfoReady(t) {
		return state
	}

	length := t.Length()
	completed := t.BytesCompleted()
	state.Length = length
	state.BytesCompleted = completed
	if length > 0 {
		state.Progress = float64(completed) / float64(length) * 100
		state.Seeding = completed >= length
	}

	if h.manager != nil {
		h.manager.noteSeeding(h.id, state.Seeding)
	}
	return state
}
