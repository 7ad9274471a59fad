package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAssetStatusWireValues(t *testing.T) {
	// These values are persisted and sent on the wire; changing them breaks
	// clients.
	if StatusPending != "PENDING" {
		t.Fatalf("StatusPending = %q", StatusPending)
	}
	if StatusDownloading != "DOWNLOADING" {
		t.Fatalf("StatusDownloading = %q", StatusDownloading)
	}
	if StatusConverting != "DL_AND_CONVERT" {
		t.Fatalf("StatusConverting = %q", StatusConverting)
	}
	if StatusPlayable != "PLAYABLE" {
		t.Fatalf("StatusPlayable = %q", StatusPlayable)
	}
	if StatusReady != "READY" {
		t.Fatalf("StatusReady = %q", StatusReady)
	}
	if StatusError != "ERROR" {
		t.Fatalf("StatusError = %q", StatusError)
	}
	if StatusNotFound != "NOT_FOUND" {
		t.Fatalf("StatusNotFound = %q", StatusNotFound)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		name string
		from AssetStatus
		to   AssetStatus
	}{
		{"Pending->Downloading", StatusPending, StatusDownloading},
		{"Pending->Error", StatusPending, StatusError},
		{"Downloading->Converting", StatusDownloading, StatusConverting},
		{"Downloading->Error", StatusDownloading, StatusError},
		{"Converting->Playable", StatusConverting, StatusPlayable},
		{"Converting->Error", StatusConverting, StatusError},
		{"Playable->Ready", StatusPlayable, StatusReady},
		{"Playable->Error", StatusPlayable, StatusError},
		{"PlayableEviction", StatusPlayable, StatusPending},
		{"ReadyEviction", StatusReady, StatusPending},
		{"ErrorRestart", StatusError, StatusDownloading},
		{"ErrorEviction", StatusError, StatusPending},
	}
	for _, tc := range allowed {
		t.Run(tc.name, func(t *testing.T) {
			if !CanTransition(tc.from, tc.to) {
				t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
			}
		})
	}

	denied := []struct {
		name string
		from AssetStatus
		to   AssetStatus
	}{
		{"Pending->Playable", StatusPending, StatusPlayable},
		{"Pending->Ready", StatusPending, StatusReady},
		{"Downloading->Ready", StatusDownloading, StatusReady},
		{"Ready->Downloading", StatusReady, StatusDownloading},
		{"Ready->Error", StatusReady, StatusError},
		{"Converting->Pending", StatusConverting, StatusPending},
	}
	for _, tc := range denied {
		t.Run(tc.name, func(t *testing.T) {
			if CanTransition(tc.from, tc.to) {
				t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
			}
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusDownloading.InProgress() || !StatusConverting.InProgress() {
		t.Fatal("DOWNLOADING and DL_AND_CONVERT must be in progress")
	}
	if StatusPlayable.InProgress() {
		t.Fatal("PLAYABLE is not an in-progress state")
	}
	if !StatusPlayable.Streamable() || !StatusReady.Streamable() {
		t.Fatal("PLAYABLE and READY must be streamable")
	}
	if StatusConverting.Streamable() {
		t.Fatal("DL_AND_CONVERT is not streamable")
	}
	if StatusNotFound.Valid() {
		t.Fatal("NOT_FOUND must not be persistable")
	}
}

func TestMovieAssetValidate(t *testing.T) {
	base := MovieAsset{ID: "42", Status: StatusPending}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid asset rejected: %v", err)
	}

	missing := base
	missing.ID = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}

	over := base
	over.Progress = 101
	if err := over.Validate(); err == nil {
		t.Fatal("expected error for progress > 100")
	}

	playable := base
	playable.Status = StatusPlayable
	if err := playable.Validate(); err == nil {
		t.Fatal("expected error for PLAYABLE without streamable path")
	}
	playable.StreamableRelPath = "movie_segment_000.mp4"
	if err := playable.Validate(); err != nil {
		t.Fatalf("streamable asset rejected: %v", err)
	}
}

func TestStaleAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	ttl := 30 * 24 * time.Hour

	never := MovieAsset{ID: "1", Status: StatusReady}
	if never.StaleAt(now, ttl) {
		t.Fatal("never-watched asset must not be stale")
	}

	old := never
	old.LastWatchedAt = now.Add(-31 * 24 * time.Hour)
	if !old.StaleAt(now, ttl) {
		t.Fatal("asset watched 31 days ago must be stale")
	}

	fresh := never
	fresh.LastWatchedAt = now.Add(-29 * 24 * time.Hour)
	if fresh.StaleAt(now, ttl) {
		t.Fatal("asset watched 29 days ago must not be stale")
	}
}

func TestEvicted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	a := MovieAsset{
		ID:                "42",
		Magnet:            "magnet:?xt=urn:btih:AAAA",
		Status:            StatusReady,
		Progress:          100,
		OriginalRelPath:   "movie/movie.mkv",
		StreamableRelPath: "movie/movie_segment_000.mp4",
		DurationSeconds:   4200,
		LastWatchedAt:     now.Add(-31 * 24 * time.Hour),
	}
	got := a.Evicted(now)
	if got.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	if got.Progress != 0 {
		t.Fatalf("progress = %f, want 0", got.Progress)
	}
	if got.OriginalRelPath != "" || got.StreamableRelPath != "" {
		t.Fatal("file paths must be cleared")
	}
	if got.DurationSeconds != 0 {
		t.Fatal("duration must be cleared")
	}
	if got.Magnet != a.Magnet {
		t.Fatal("magnet must be kept")
	}
	if !got.LastWatchedAt.Equal(a.LastWatchedAt) {
		t.Fatal("watch history must be kept")
	}
}

func TestBrowserCompatible(t *testing.T) {
	tests := []struct {
		name string
		info MediaInfo
		want bool
	}{
		{"Mp4H264Aac", MediaInfo{Container: "mov,mp4,m4a,3gp,3g2,mj2", VideoCodec: "h264", AudioCodec: "aac"}, true},
		{"Avc1Alias", MediaInfo{Container: "mp4", VideoCodec: "avc1", AudioCodec: "aac"}, true},
		{"NoAudioTrack", MediaInfo{Container: "mp4", VideoCodec: "h264"}, true},
		{"Matroska", MediaInfo{Container: "matroska,webm", VideoCodec: "h264", AudioCodec: "aac"}, false},
		{"Hevc", MediaInfo{Container: "mp4", VideoCodec: "hevc", AudioCodec: "aac"}, false},
		{"Ac3Audio", MediaInfo{Container: "mp4", VideoCodec: "h264", AudioCodec: "ac3"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.info.BrowserCompatible(); got != tc.want {
				t.Fatalf("BrowserCompatible() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNotReadyErrorUnwrapsToSentinel(t *testing.T) {
	err := NotReadyError{Status: StatusConverting}
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("NotReadyError must match ErrNotReady, got %v", err)
	}
	var notReady NotReadyError
	if !errors.As(err, &notReady) || notReady.Status != StatusConverting {
		t.Fatalf("errors.As lost the status: %+v", notReady)
	}
	if want := "not ready for streaming (status: DL_AND_CONVERT)"; err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}
