package domain

import (
	"errors"
	"time"
)

// MovieID is the external catalog identifier of a movie. It is opaque to the
// pipeline; callers decide which namespace it belongs to.
type MovieID string

// MovieAsset is the persisted record for one movie. The pipeline worker is
// the only writer of status, progress and file paths; the HTTP layer writes
// only LastWatchedAt. Every state change is published as a single document
// write so readers always observe a consistent snapshot.
type MovieAsset struct {
	ID     MovieID     `json:"movieId"`
	Magnet string      `json:"-"`
	Status AssetStatus `json:"status"`
	// Progress is the download completion of the target file in percent.
	Progress float64 `json:"progress"`
	// OriginalRelPath is the target file's path inside the movie directory,
	// as named by the torrent (subdirectories preserved).
	OriginalRelPath string `json:"originalRelPath,omitempty"`
	// StreamableRelPath points at segment 000. Non-empty iff the asset is
	// PLAYABLE or READY.
	StreamableRelPath string `json:"streamableRelPath,omitempty"`
	// DurationSeconds is the probed duration of the original. Zero until the
	// first successful probe.
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
	LastWatchedAt   time.Time `json:"lastWatchedAt,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Validate checks domain invariants for MovieAsset.
func (a MovieAsset) Validate() error {
	if a.ID == "" {
		return errors.New("movie id is required")
	}
	if a.Progress < 0 || a.Progress > 100 {
		return errors.New("progress must be within [0,100]")
	}
	if a.Status == "" {
		return errors.New("status is required")
	}
	if !a.Status.Valid() {
		return errors.New("invalid status: " + string(a.Status))
	}
	if a.Status.Streamable() && a.StreamableRelPath == "" {
		return errors.New("streamable asset must have a streamable path")
	}
	return nil
}

// StaleAt reports whether the asset has gone unwatched long enough to be
// evicted. Assets that were never watched are not considered stale.
func (a MovieAsset) StaleAt(now time.Time, ttl time.Duration) bool {
	if a.LastWatchedAt.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(a.LastWatchedAt) > ttl
}

// Evicted returns a copy reset to the pre-download state: files forgotten,
// progress zeroed, magnet and watch history kept.
func (a MovieAsset) Evicted(now time.Time) MovieAsset {
	a.Status = StatusPending
	a.Progress = 0
	a.OriginalRelPath = ""
	a.StreamableRelPath = ""
	a.DurationSeconds = 0
	a.UpdatedAt = now
	return a
}
