package ports

import (
	"context"

	"moviestream/internal/domain"
)

// SwarmHandle wraps one admitted torrent.
type SwarmHandle interface {
	ID() domain.HandleID
	// WaitInfo blocks until torrent metadata is available or the context is
	// done.
	WaitInfo(ctx context.Context) error
	Files() []domain.FileRef
	// EnableSequential marks the whole torrent wanted and raises piece
	// priorities over the file's leading window so bytes arrive roughly in
	// playback order.
	EnableSequential(file domain.FileRef)
	// AdvanceWindow re-slides the high-priority window to start at the first
	// incomplete byte of the file. Called on every progress poll.
	AdvanceWindow(file domain.FileRef)
	// State samples whole-torrent progress, peer count, seeding flag and the
	// time the handle has been active.
	State() domain.HandleState
}
