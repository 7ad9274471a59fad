package ports

import (
	"context"
	"sync"

	"moviestream/internal/domain"
)

// SwarmEngine owns the process-wide torrent session. Admission is idempotent:
// the same magnet always resolves to the same handle id, and re-admitting a
// known magnet returns the existing handle untouched.
type SwarmEngine interface {
	// Fingerprint derives the stable handle id of a magnet without admitting
	// it to the swarm.
	Fingerprint(magnet string) (domain.HandleID, error)
	Admit(ctx context.Context, magnet string, savePath string) (domain.HandleID, error)
	Handle(id domain.HandleID) (SwarmHandle, error)
	// Lock returns the per-handle mutex serializing operations against one
	// torrent. The engine's map lock is never held while a caller owns a
	// handle mutex.
	Lock(id domain.HandleID) (sync.Locker, error)
	Remove(ctx context.Context, id domain.HandleID) error
	HandleIDs() []domain.HandleID
	Close() error
}
