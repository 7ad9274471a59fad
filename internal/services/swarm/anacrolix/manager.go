package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"moviestream/internal/domain"
	"moviestream/internal/domain/ports"
	"moviestream/internal/metrics"
)

var ErrHandleNotFound = domain.ErrNotFound

const (
	// admitTimeout caps the time we wait for the anacrolix client to accept
	// a magnet link. AddTorrentSpec can block on an internal client mutex
	// when the client is busy (e.g. resolving metadata for another torrent).
	admitTimeout = 10 * time.Second

	// defaultReapInterval is how often the seeding reaper scans the handle
	// table.
	defaultReapInterval = 5 * time.Minute
)

type Config struct {
	DataRoot      string        // fallback piece store; Admit overrides it per handle
	PortLow       int           // first candidate listen port
	PortHigh      int           // last candidate listen port
	SeedReapAfter time.Duration // drop seeding handles active longer than this; 0 = disabled
	ReapInterval  time.Duration // defaults to 5m
}

// handleEntry is one admitted torrent plus its per-handle mutex. The mutex
// serializes multi-step operations against a single torrent without blocking
// the whole table.
type handleEntry struct {
	t       *torrent.Torrent
	mu      *sync.Mutex
	addedAt time.Time
}

// Manager owns the process-wide swarm session: one anacrolix client and the
// table of admitted torrents, keyed by infohash.
type Manager struct {
	client        *torrent.Client
	handles       map[domain.HandleID]*handleEntry
	seeding       map[domain.HandleID]bool // last sampled seeding flag per handle
	mu            sync.RWMutex
	windowMu      sync.Mutex
	windows       map[domain.HandleID]windowPieceRange
	seedReapAfter time.Duration
	reaperCancel  context.CancelFunc
}

// New binds the swarm listener to the first free port in [PortLow, PortHigh]
// and starts the seeding reaper.
func New(cfg Config) (*Manager, error) {
	if cfg.PortLow <= 0 || cfg.PortHigh < cfg.PortLow {
		return nil, fmt.Errorf("invalid swarm port range %d-%d", cfg.PortLow, cfg.PortHigh)
	}

	var client *torrent.Client
	var lastErr error
	for port := cfg.PortLow; port <= cfg.PortHigh; port++ {
		clientConfig := torrent.NewDefaultClientConfig()
		clientConfig.Seed = true
		clientConfig.ListenPort = port
		if cfg.DataRoot != "" {
			clientConfig.DataDir = cfg.DataRoot
		}

		c, err := torrent.NewClient(clientConfig)
		if err == nil {
			client = c
			slog.Info("swarm listener bound", slog.Int("port", port))
			break
		}
		lastErr = err
		slog.Warn("swarm port unavailable",
			slog.Int("port", port),
			slog.Any("error", err),
		)
	}
	if client == nil {
		return nil, fmt.Errorf("no free port in %d-%d: %w", cfg.PortLow, cfg.PortHigh, lastErr)
	}

	m := NewWithClient(client)
	m.seedReapAfter = cfg.SeedReapAfter

	if m.seedReapAfter > 0 {
		interval := cfg.ReapInterval
		if interval <= 0 {
			interval = defaultReapInterval
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.reaperCancel = cancel
		go m.reaper(ctx, interval)
	}

	return m, nil
}

func NewWithClient(client *torrent.Client) *Manager {
	return &Manager{
		client:  client,
		handles: make(map[domain.HandleID]*handleEntry),
		seeding: make(map[domain.HandleID]bool),
		windows: make(map[domain.HandleID]windowPieceRange),
	}
}

// Fingerprint derives the stable identity of a magnet link: the hex-encoded
// infohash. Two magnets that differ only in display name or tracker list map
// to the same fingerprint.
func Fingerprint(magnetURI string) (domain.HandleID, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(magnetURI)
	if err != nil {
		return "", fmt.Errorf("parse magnet: %w", err)
	}
	return domain.HandleID(spec.InfoHash.HexString()), nil
}

// Fingerprint implements ports.SwarmEngine without touching the session.
func (m *Manager) Fingerprint(magnetURI string) (domain.HandleID, error) {
	return Fingerprint(magnetURI)
}

// ---------------------------------------------------------------------------
// Admission
// ---------------------------------------------------------------------------

// Admit registers a magnet with the swarm and returns its handle id. Admission
// is idempotent: a magnet whose infohash is already tracked returns the
// existing handle id without touching the torrent. Pieces are stored under
// savePath so the downloaded movie lands directly in its library directory.
func (m *Manager) Admit(ctx context.Context, magnetURI string, savePath string) (domain.HandleID, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(magnetURI)
	if err != nil {
		return "", fmt.Errorf("parse magnet: %w", err)
	}
	id := domain.HandleID(spec.InfoHash.HexString())

	// Fast path: the swarm already tracks this infohash.
	m.mu.RLock()
	_, exists := m.handles[id]
	m.mu.RUnlock()
	if exists {
		return id, nil
	}

	if m.client == nil {
		return "", errors.New("torrent client not configured")
	}

	// Per-torrent storage with in-memory piece completion so each movie's
	// pieces land in its own directory.
	spec.Storage = storage.NewFileWithCompletion(savePath, storage.NewMapPieceCompletion())

	// Run AddTorrentSpec with a timeout so we never block the caller
	// indefinitely if the anacrolix client is busy.
	ch := make(chan addResult, 1)
	go func() {
		t, _, err := m.client.AddTorrentSpec(spec)
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		t = res.t
	case <-time.After(admitTimeout):
		// The goroutine may still complete AddTorrentSpec after we return.
		// Spawn a cleanup goroutine to drop the orphaned torrent.
		go m.dropOrphan(id, ch)
		return "", errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go m.dropOrphan(id, ch)
		return "", ctx.Err()
	}

	m.mu.Lock()
	if _, exists := m.handles[id]; !exists {
		m.handles[id] = &handleEntry{
			t:       t,
			mu:      &sync.Mutex{},
			addedAt: time.Now().UTC(),
		}
		metrics.ActiveHandles.Inc()
	}
	m.mu.Unlock()

	return id, nil
}

type addResult struct {
	t   *torrent.Torrent
	err error
}

// dropOrphan waits for a timed-out AddTorrentSpec to finish, then drops the
// torrent unless a concurrent Admit registered it in the meantime.
func (m *Manager) dropOrphan(id domain.HandleID, ch <-chan addResult) {
	res := <-ch
	if res.t == nil {
		return
	}
	m.mu.RLock()
	_, tracked := m.handles[id]
	m.mu.RUnlock()
	if !tracked {
		res.t.Drop()
	}
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

func (m *Manager) Handle(id domain.HandleID) (ports.SwarmHandle, error) {
	entry := m.getEntry(id)
	if entry == nil {
		return nil, ErrHandleNotFound
	}
	return &Handle{
		manager: m,
		torrent: entry.t,
		id:      id,
		addedAt: entry.addedAt,
	}, nil
}

// Lock returns the per-handle mutex. Callers never hold it while calling back
// into the manager's table operations.
func (m *Manager) Lock(id domain.HandleID) (sync.Locker, error) {
	m.mu.RLock()
	entry := m.handles[id]
	m.mu.RUnlock()
	if entry == nil {
		return nil, ErrHandleNotFound
	}
	return entry.mu, nil
}

func (m *Manager) HandleIDs() []domain.HandleID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]domain.HandleID, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) getEntry(id domain.HandleID) *handleEntry {
	m.mu.RLock()
	entry := m.handles[id]
	m.mu.RUnlock()
	if entry == nil {
		return nil
	}
	if entry.t != nil {
		select {
		case <-entry.t.Closed():
			_ = m.Remove(context.Background(), id)
			return nil
		default:
		}
	}
	return entry
}

// ---------------------------------------------------------------------------
// Removal
// ---------------------------------------------------------------------------

// Remove drops a torrent from the swarm. Downloaded data stays on disk; only
// the swarm membership and piece bookkeeping go away.
func (m *Manager) Remove(ctx context.Context, id domain.HandleID) error {
	m.mu.Lock()
	entry, ok := m.handles[id]
	if !ok {
		m.mu.Unlock()
		return ErrHandleNotFound
	}
	delete(m.handles, id)
	delete(m.seeding, id)
	m.mu.Unlock()

	m.forgetWindow(id)
	if entry.t != nil {
		entry.t.Drop()
	}
	metrics.ActiveHandles.Dec()

	// Return memory to the OS promptly after dropping a torrent. Without
	// this, Go's GC may hold freed memory for a long time, which causes OOM
	// on memory-constrained systems (Docker, NAS).
	freeOSMemory()
	return nil
}

func (m *Manager) Close() error {
	if m.reaperCancel != nil {
		m.reaperCancel()
	}
	if m.client == nil {
		return nil
	}
	errList := m.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Seeding reaper
// ---------------------------------------------------------------------------

// reaper periodically drops handles that finished downloading and have been
// in the swarm longer than seedReapAfter. A finished torrent keeps seeding
// until the reaper removes it, so peers that joined late still get pieces.
func (m *Manager) reaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapSeedingHandles()
		}
	}
}

func (m *Manager) reapSeedingHandles() {
	now := time.Now().UTC()

	m.mu.Lock()
	// Refresh the seeding table from the live torrents. Handles whose
	// pipeline finished are no longer sampled by anyone else.
	for id, entry := range m.handles {
		if entry.t != nil && torrentInfoReady(entry.t) {
			m.seeding[id] = torrentSeeding(entry.t)
		}
	}
	candidates := m.reapCandidatesLocked(now)
	m.mu.Unlock()

	for _, id := range candidates {
		slog.Info("reaping seeded handle",
			slog.String("handleId", string(id)),
			slog.Duration("seedReapAfter", m.seedReapAfter),
		)
		if err := m.Remove(context.Background(), id); err == nil {
			metrics.ReapedHandlesTotal.Inc()
		}
	}
}

// reapCandidatesLocked returns the handles that are seeding and have been in
// the swarm longer than seedReapAfter. Caller must hold m.mu.
func (m *Manager) reapCandidatesLocked(now time.Time) []domain.HandleID {
	if m.seedReapAfter <= 0 {
		return nil
	}
	var ids []domain.HandleID
	for id, entry := range m.handles {
		if !m.seeding[id] {
			continue
		}
		if entry.addedAt.IsZero() {
			continue
		}
		if now.Sub(entry.addedAt) > m.seedReapAfter {
			ids = append(ids, id)
		}
	}
	return ids
}

// noteSeeding records the seeding flag sampled by a Handle.State call so the
// reaper sees fresh data without touching the torrent itself.
func (m *Manager) noteSeeding(id domain.HandleID, seeding bool) {
	m.mu.Lock()
	if _, ok := m.handles[id]; ok {
		m.seeding[id] = seeding
	}
	m.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// freeOSMemory triggers garbage collection and returns freed memory to the OS.
// Called after handle cleanup to prevent memory accumulation.
func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func torrentSeeding(t *torrent.Torrent) bool {
	if !torrentInfoReady(t) {
		return false
	}
	length := t.Length()
	return length > 0 && t.BytesCompleted() >= length
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

func mapFiles(t *torrent.Torrent) (mapped []domain.FileRef) {
	if !torrentInfoReady(t) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mapFiles panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			mapped = nil
		}
	}()

	files := t.Files()
	mapped = make([]domain.FileRef, 0, len(files))
	for i, f := range files {
		mapped = append(mapped, domain.FileRef{
			Index:          i,
			Path:           f.Path(),
			Length:         f.Length(),
			BytesCompleted: f.BytesCompleted(),
		})
	}
	return mapped
}
