package domain

// HandleID identifies one admitted torrent inside the swarm session. It is
// derived from the magnet's infohash, so re-admitting the same magnet always
// yields the same id.
type HandleID string

// FileRef describes one file inside a torrent.
type FileRef struct {
	Index          int    `json:"index"`
	Path           string `json:"path"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
}

// HandleState is a point-in-time sample of one swarm handle.
type HandleState struct {
	ID             HandleID `json:"id"`
	Progress       float64  `json:"progress"`
	BytesCompleted int64    `json:"bytesCompleted"`
	Length         int64    `json:"length"`
	Peers          int      `json:"peers"`
	Seeding        bool     `json:"seeding"`
	ActiveSeconds  float64  `json:"activeSeconds"`
}
