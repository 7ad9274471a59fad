package segments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"moviestream/internal/domain"
)

// Store is the on-disk layout for movie downloads and their extracted
// segments: <root>/movies/<movieId>/<original torrent layout>, with segment
// files named <baseName>_segment_<NNN>.mp4 beside the original. Segment
// files are written by a single pipeline worker and only ever read by the
// HTTP layer, so no locking is needed here.
type Store struct {
	root string
}

var errPathEscape = errors.New("path escapes movie directory")

// New creates the store rooted at root. The path is made absolute so later
// joins cannot be fooled by a working-directory change.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve download root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "movies"), 0o755); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// MovieDir returns the directory for one movie without creating it.
func (s *Store) MovieDir(id domain.MovieID) string {
	return filepath.Join(s.root, "movies", string(id))
}

// Reserve ensures the movie directory exists and returns its absolute path.
func (s *Store) Reserve(id domain.MovieID) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("%w: bad movie id %q", domain.ErrInvalidInput, id)
	}
	dir := s.MovieDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("reserve %s: %w", id, err)
	}
	return dir, nil
}

// validID rejects ids that could name anything outside the movies directory.
func validID(id domain.MovieID) bool {
	v := string(id)
	return v != "" && v != "." && v != ".." && filepath.Base(v) == v
}

// OriginalPath resolves the original file's absolute path from its relative
// path inside the movie directory.
func (s *Store) OriginalPath(id domain.MovieID, rel string) (string, error) {
	return s.join(id, rel)
}

// ResolveOriginal returns the on-disk path of the original file, preferring
// the final name but falling back to its in-progress form. The torrent layer
// keeps incomplete files under a ".part" suffix and renames them into place
// once complete, so while the download is running only the suffixed file
// exists.
func (s *Store) ResolveOriginal(id domain.MovieID, rel string) (string, error) {
	path, err := s.join(id, rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	part := path + ".part"
	if _, err := os.Stat(part); err == nil {
		return part, nil
	}
	return "", fmt.Errorf("original file %s: %w", rel, domain.ErrNotFound)
}

// SegmentPath resolves the absolute path of segment index for a movie whose
// original lives at originalRel.
func (s *Store) SegmentPath(id domain.MovieID, originalRel string, index int) (string, error) {
	return s.join(id, s.SegmentRelPath(originalRel, index))
}

// SegmentRelPath applies the naming rule: the segment sits beside the
// original, named after its basename without extension.
func (s *Store) SegmentRelPath(originalRel string, index int) string {
	dir := filepath.Dir(originalRel)
	base := strings.TrimSuffix(filepath.Base(originalRel), filepath.Ext(originalRel))
	name := SegmentFileName(base, index)
	if dir == "." {
		return name
	}
	return filepath.Join(dir, name)
}

// SegmentFileName builds the canonical segment file name for a base name.
func SegmentFileName(base string, index int) string {
	return fmt.Sprintf("%s_segment_%03d.mp4", base, index)
}

// CountSegments returns the dense high-water count H: segments 0..H-1 all
// exist on disk. A gap stops the scan, so an index beyond a gap is never
// reported even if its file exists.
func (s *Store) CountSegments(id domain.MovieID, originalRel string) int {
	if originalRel == "" {
		return 0
	}
	count := 0
	for {
		path, err := s.SegmentPath(id, originalRel, count)
		if err != nil {
			return count
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return count
		}
		count++
	}
}

// ListSegments returns the dense segment list with file sizes.
func (s *Store) ListSegments(id domain.MovieID, originalRel string) ([]domain.Segment, error) {
	if originalRel == "" {
		return nil, nil
	}
	var out []domain.Segment
	for i := 0; ; i++ {
		path, err := s.SegmentPath(id, originalRel, i)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return out, nil
			}
			return nil, fmt.Errorf("stat segment %d: %w", i, err)
		}
		if info.IsDir() {
			return out, nil
		}
		out = append(out, domain.Segment{
			MovieID:  id,
			Index:    i,
			Filename: filepath.Base(path),
			Size:     info.Size(),
		})
	}
}

// Remove deletes the movie directory and everything under it.
func (s *Store) Remove(id domain.MovieID) error {
	if !validID(id) {
		return fmt.Errorf("%w: bad movie id %q", domain.ErrInvalidInput, id)
	}
	return os.RemoveAll(s.MovieDir(id))
}

// join resolves rel inside the movie directory and rejects escapes.
func (s *Store) join(id domain.MovieID, rel string) (string, error) {
	if !validID(id) || rel == "" {
		return "", fmt.Errorf("%w: bad path component", domain.ErrInvalidInput)
	}
	dir := s.MovieDir(id)
	path := filepath.Clean(filepath.Join(dir, rel))
	if path == dir || !strings.HasPrefix(path, dir+string(os.PathSeparator)) {
		return "", errPathEscape
	}
	return path, nil
}
