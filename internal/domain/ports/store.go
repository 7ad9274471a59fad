package ports

import "moviestream/internal/domain"

// SegmentStore is the content-addressed disk layout under
// <root>/movies/<movieId>/. All path operations reject escapes out of the
// movie directory.
type SegmentStore interface {
	// Reserve ensures the movie directory exists and returns its absolute
	// path.
	Reserve(id domain.MovieID) (string, error)
	OriginalPath(id domain.MovieID, rel string) (string, error)
	// ResolveOriginal returns the original's on-disk path, falling back to
	// the torrent layer's in-progress ".part" name while the download runs.
	ResolveOriginal(id domain.MovieID, rel string) (string, error)
	SegmentPath(id domain.MovieID, originalRel string, index int) (string, error)
	// SegmentRelPath is the pure naming rule: the segment file path relative
	// to the movie directory, derived from the original's relative path.
	SegmentRelPath(originalRel string, index int) string
	// CountSegments returns the dense high-water count: the largest H such
	// that segments 0..H-1 all exist on disk.
	CountSegments(id domain.MovieID, originalRel string) int
	ListSegments(id domain.MovieID, originalRel string) ([]domain.Segment, error)
	// Remove deletes the whole movie directory. Used only by eviction.
	Remove(id domain.MovieID) error
}
