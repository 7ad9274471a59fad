package domain

import "errors"

// AssetStatus is the lifecycle state of a movie asset. The same values are
// persisted and sent on the wire.
type AssetStatus string

const (
	StatusPending     AssetStatus = "PENDING"
	StatusDownloading AssetStatus = "DOWNLOADING"
	// StatusConverting means the download and the segment extraction are
	// running at the same time.
	StatusConverting AssetStatus = "DL_AND_CONVERT"
	// StatusPlayable means segment 0 exists; clients may start streaming
	// while later segments are still being produced.
	StatusPlayable AssetStatus = "PLAYABLE"
	StatusReady    AssetStatus = "READY"
	StatusError    AssetStatus = "ERROR"
	// StatusNotFound is reported for unknown movie ids. It is never persisted.
	StatusNotFound AssetStatus = "NOT_FOUND"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions defines the adjacency list of allowed status transitions.
// PENDING entries from PLAYABLE/READY/ERROR cover eviction resets.
var validTransitions = map[AssetStatus][]AssetStatus{
	StatusPending:     {StatusDownloading, StatusError},
	StatusDownloading: {StatusConverting, StatusError},
	StatusConverting:  {StatusPlayable, StatusError},
	StatusPlayable:    {StatusReady, StatusError, StatusPending},
	StatusReady:       {StatusPending},
	StatusError:       {StatusDownloading, StatusPending},
}

// CanTransition reports whether moving from one status to another is valid.
func CanTransition(from, to AssetStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a persistable status value.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusConverting, StatusPlayable, StatusReady, StatusError:
		return true
	}
	return false
}

// InProgress reports whether a pipeline worker is expected to be live.
func (s AssetStatus) InProgress() bool {
	return s == StatusDownloading || s == StatusConverting
}

// Streamable reports whether segment 0 is available for playback.
func (s AssetStatus) Streamable() bool {
	return s == StatusPlayable || s == StatusReady
}
