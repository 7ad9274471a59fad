package anacrolix

import (
	"log/slog"

	"github.com/anacrolix/torrent"

	"moviestream/internal/domain"
)

// windowPieceRange is the half-open [start, end) piece interval currently
// boosted ahead of a file's download frontier.
type windowPieceRange struct {
	start int
	end   int
}

const (
	// windowBytes is how far past the download frontier piece priorities are
	// raised. Large enough to ride out slow peers, small enough that the
	// window stays near playback order.
	windowBytes = int64(32 << 20)

	// urgentPieces at the head of the window download at the highest
	// priority; the rest of the window uses readahead priority.
	urgentPieces = 2

	minWindowPieces = 4
	maxWindowPieces = 256
)

func mapPriority(prio domain.Priority) torrent.PiecePriority {
	switch prio {
	case domain.PriorityNone:
		return torrent.PiecePriorityNone
	case domain.PriorityHigh:
		return torrent.PiecePriorityNow
	case domain.PriorityNext:
		return torrent.PiecePriorityNext
	case domain.PriorityReadahead:
		return torrent.PiecePriorityReadahead
	case domain.PriorityNormal:
		return torrent.PiecePriorityNormal
	default:
		return torrent.PiecePriorityNormal
	}
}

// windowPieceCount converts windowBytes into a piece count for the torrent's
// piece size, clamped so tiny pieces don't explode the window and huge pieces
// still get a usable one.
func windowPieceCount(pieceSize int64) int {
	if pieceSize <= 0 {
		return minWindowPieces
	}
	n := int(windowBytes / pieceSize)
	if n < minWindowPieces {
		n = minWindowPieces
	}
	if n > maxWindowPieces {
		n = maxWindowPieces
	}
	return n
}

func (m *Manager) applyWindow(t *torrent.Torrent, id domain.HandleID, file domain.FileRef) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("applyWindow recovered from panic",
				slog.Any("panic", rec),
				slog.String("handleId", string(id)),
			)
		}
	}()

	files := t.Files()
	if file.Index < 0 || file.Index >= len(files) {
		return
	}

	pr, ok := computeWindowPieceRange(t, files[file.Index])
	if !ok {
		return
	}

	m.windowMu.Lock()
	prev, had := m.windows[id]
	m.windows[id] = pr
	m.windowMu.Unlock()
	if had && prev == pr {
		return
	}

	urgent := mapPriority(domain.PriorityHigh)
	ahead := mapPriority(domain.PriorityReadahead)
	for i := pr.start; i < pr.end; i++ {
		if i < pr.start+urgentPieces {
			t.Piece(i).SetPriority(urgent)
		} else {
			t.Piece(i).SetPriority(ahead)
		}
	}
}

// computeWindowPieceRange locates the file's download frontier (its first
// incomplete piece) and returns the window of pieces to boost from there.
// Returns false when the file is fully downloaded or the torrent has no
// usable piece geometry.
func computeWindowPieceRange(t *torrent.Torrent, f *torrent.File) (windowPieceRange, bool) {
	if t == nil || f == nil {
		return windowPieceRange{}, false
	}
	info := t.Info()
	if info == nil {
		return windowPieceRange{}, false
	}
	pieceSize := int64(info.PieceLength)
	if pieceSize <= 0 {
		return windowPieceRange{}, false
	}

	begin := f.BeginPieceIndex()
	end := f.EndPieceIndex()
	numPieces := t.NumPieces()
	if begin < 0 {
		begin = 0
	}
	if end > numPieces {
		end = numPieces
	}
	if end <= begin {
		return windowPieceRange{}, false
	}

	frontier := -1
	for i := begin; i < end; i++ {
		if !t.PieceState(i).Complete {
			frontier = i
			break
		}
	}
	if frontier < 0 {
		return windowPieceRange{}, false
	}

	windowEnd := frontier + windowPieceCount(pieceSize)
	if windowEnd > end {
		windowEnd = end
	}
	return windowPieceRange{start: frontier, end: windowEnd}, true
}

func (m *Manager) forgetWindow(id domain.HandleID) {
	m.windowMu.Lock()
	if m.windows != nil {
		delete(m.windows, id)
	}
	m.windowMu.Unlock()
}
