package domain

// Segment describes one extracted slice of a movie. Segment N covers the
// half-open interval [N*D, (N+1)*D) seconds of the source, where D is the
// configured segment duration. Segment files are written once and never
// mutated; they disappear only through asset eviction.
type Segment struct {
	MovieID  MovieID `json:"-"`
	Index    int     `json:"segment"`
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
}
