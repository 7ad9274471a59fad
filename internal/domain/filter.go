package domain

import "time"

// AssetFilter narrows repository listings. Zero values mean "no constraint".
type AssetFilter struct {
	Statuses []AssetStatus `json:"statuses,omitempty"`
	// WatchedBefore selects assets whose LastWatchedAt is non-zero and older
	// than the given instant. Used by the eviction janitor.
	WatchedBefore time.Time `json:"watchedBefore,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}
