package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"moviestream/internal/domain"
	"moviestream/internal/metrics"
	"moviestream/internal/usecase"
)

// streamChunkSize is how much segment data is read per write; a slow client
// never holds more than one chunk in memory.
const streamChunkSize = 8 << 10

type startStreamRequest struct {
	MagnetLink string `json:"magnet_link"`
}

type startAcceptedResponse struct {
	Status  domain.AssetStatus `json:"status"`
	Message string             `json:"message"`
}

type startActiveResponse struct {
	Status   domain.AssetStatus `json:"status"`
	Progress float64            `json:"progress"`
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request, id domain.MovieID) {
	if s.startStream == nil {
		writeWireError(w, http.StatusInternalServerError, "Start use case not configured")
		return
	}

	var body startStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeWireError(w, http.StatusBadRequest, "Magnet link is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	asset, err := s.startStream.Execute(ctx, usecase.StartStreamInput{MovieID: id, Magnet: body.MagnetLink})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMagnetRequired):
			writeWireError(w, http.StatusBadRequest, "Magnet link is required")
		case errors.Is(err, domain.ErrInvalidInput):
			writeWireError(w, http.StatusBadRequest, "Invalid movie id")
		default:
			s.logger.Error("start stream failed",
				slog.String("movieId", string(id)),
				slog.Any("error", err),
			)
			writeWireError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	// An asset that is already being worked on, or is streamable, reports its
	// current state; only a fresh or restarted asset acknowledges the spawn.
	if asset.Status.InProgress() || asset.Status.Streamable() {
		writeJSON(w, http.StatusOK, startActiveResponse{Status: asset.Status, Progress: asset.Progress})
		return
	}
	writeJSON(w, http.StatusOK, startAcceptedResponse{
		Status:  domain.StatusPending,
		Message: "Started movie processing",
	})
}

type assetStatusResponse struct {
	Status            domain.AssetStatus `json:"status"`
	Progress          float64            `json:"progress"`
	FilePath          *string            `json:"file_path"`
	Ready             bool               `json:"ready"`
	Downloading       bool               `json:"downloading"`
	AvailableSegments *int               `json:"available_segments,omitempty"`
	TotalDuration     *float64           `json:"total_duration,omitempty"`
	SegmentDuration   *float64           `json:"segment_duration,omitempty"`
}

func (s *Server) handleAssetStatus(w http.ResponseWriter, r *http.Request, id domain.MovieID) {
	if s.assetStatus == nil {
		writeWireError(w, http.StatusInternalServerError, "Status use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	view, err := s.assetStatus.Execute(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeWireError(w, http.StatusNotFound, "Movie not found")
			return
		}
		s.logger.Error("asset status failed",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
		writeWireError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := assetStatusResponse{
		Status:      view.Asset.Status,
		Progress:    view.Asset.Progress,
		FilePath:    wireFilePath(view.Asset),
		Ready:       view.Asset.Status.Streamable(),
		Downloading: view.Asset.Status.InProgress(),
	}
	if view.SegmentInfo {
		resp.AvailableSegments = &view.AvailableSegments
		resp.TotalDuration = &view.TotalDuration
		resp.SegmentDuration = &view.SegmentDuration
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request, id domain.MovieID) {
	if s.listSegments == nil {
		writeWireError(w, http.StatusInternalServerError, "Segments use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	listing, err := s.listSegments.Execute(ctx, id)
	if err != nil {
		var notReady domain.NotReadyError
		switch {
		case errors.As(err, &notReady):
			writeWireError(w, http.StatusBadRequest, fmt.Sprintf("Movie is not ready (status: %s)", notReady.Status))
		case errors.Is(err, domain.ErrNotFound):
			writeWireError(w, http.StatusNotFound, "Movie not found")
		default:
			s.logger.Error("list segments failed",
				slog.String("movieId", string(id)),
				slog.Any("error", err),
			)
			writeWireError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

type fileStatusResponse struct {
	MagnetLink       string             `json:"magnet_link,omitempty"`
	DownloadStatus   domain.AssetStatus `json:"download_status"`
	DownloadProgress float64            `json:"download_progress"`
	FilePath         *string            `json:"file_path"`
}

// handleFileStatus is the polling-friendly variant of status: unknown movies
// answer with a NOT_FOUND payload instead of a 404.
func (s *Server) handleFileStatus(w http.ResponseWriter, r *http.Request, id domain.MovieID) {
	if s.assetStatus == nil {
		writeWireError(w, http.StatusInternalServerError, "Status use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	view, err := s.assetStatus.Execute(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, fileStatusResponse{DownloadStatus: domain.StatusNotFound})
			return
		}
		s.logger.Error("file status failed",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
		writeWireError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := fileStatusResponse{
		MagnetLink:       view.Asset.Magnet,
		DownloadStatus:   view.Asset.Status,
		DownloadProgress: view.Asset.Progress,
	}
	// The file path is advertised only once the asset is fully done.
	if view.Asset.Status == domain.StatusReady {
		resp.FilePath = wireFilePath(view.Asset)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamSegment(w http.ResponseWriter, r *http.Request, id domain.MovieID) {
	if s.resolveSegment == nil {
		writeWireError(w, http.StatusInternalServerError, "Stream use case not configured")
		return
	}

	segment, err := parseSegmentQuery(r.URL.Query().Get("segment"))
	if err != nil {
		writeWireError(w, http.StatusBadRequest, "Invalid segment parameter")
		return
	}

	resolved, err := s.resolveSegment.Execute(r.Context(), id, segment)
	if err != nil {
		s.writeStreamError(w, id, segment, err)
		return
	}

	file, err := os.Open(resolved.Path)
	if err != nil {
		if os.IsNotExist(err) {
			writeWireError(w, http.StatusNotFound, fmt.Sprintf("Segment %d not found", segment))
			return
		}
		s.logger.Error("open segment failed",
			slog.String("movieId", string(id)),
			slog.Int("segment", segment),
			slog.Any("error", err),
		)
		writeWireError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		writeWireError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	size := info.Size()

	h := w.Header()
	h.Set("Content-Type", "video/mp4")
	h.Set("Accept-Ranges", "bytes")
	// The streaming contract pins these headers regardless of what the global
	// CORS layer emits.
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Range")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")

	start, end := int64(0), size-1
	status := http.StatusOK
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, end, err = parseByteRange(rangeHeader, size)
		if errors.Is(err, errInvalidRange) {
			writeWireError(w, http.StatusBadRequest, "Invalid range header")
			return
		}
		if errors.Is(err, errRangeNotSatisfiable) {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		status = http.StatusPartialContent
	}

	if start > 0 {
		if _, err := file.Seek(start, io.SeekStart); err != nil {
			writeWireError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	length := end - start + 1
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	written, copyErr := copyRange(w, file, length)
	metrics.StreamBytesServedTotal.Add(float64(written))
	if copyErr != nil {
		// Usually the client stopped playback mid-segment.
		s.logger.Debug("stream copy interrupted",
			slog.String("movieId", string(id)),
			slog.Int("segment", segment),
			slog.Int64("written", written),
			slog.Any("error", copyErr),
		)
		return
	}
	s.touchWatched(id)
}

func (s *Server) writeStreamError(w http.ResponseWriter, id domain.MovieID, segment int, err error) {
	var notReady domain.NotReadyError
	var segMissing domain.SegmentNotFoundError
	switch {
	case errors.As(err, &notReady):
		writeWireError(w, http.StatusBadRequest, fmt.Sprintf("Movie is not ready for streaming (status: %s)", notReady.Status))
	case errors.As(err, &segMissing):
		writeWireError(w, http.StatusNotFound, fmt.Sprintf("Segment %d not found", segMissing.Index))
	case errors.Is(err, domain.ErrInvalidInput):
		writeWireError(w, http.StatusBadRequest, "Invalid segment parameter")
	case errors.Is(err, domain.ErrNotFound):
		writeWireError(w, http.StatusNotFound, "Movie not found")
	default:
		s.logger.Error("stream resolve failed",
			slog.String("movieId", string(id)),
			slog.Int("segment", segment),
			slog.Any("error", err),
		)
		writeWireError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// copyRange streams exactly length bytes in streamChunkSize reads.
func copyRange(dst io.Writer, src io.Reader, length int64) (int64, error) {
	buf := make([]byte, streamChunkSize)
	var written int64
	for written < length {
		chunk := int64(len(buf))
		if remaining := length - written; remaining < chunk {
			chunk = remaining
		}
		n, err := io.ReadFull(src, buf[:chunk])
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// touchWatched stamps lastWatchedAt after a fully served stream response.
// Failures only log; the stream already succeeded.
func (s *Server) touchWatched(id domain.MovieID) {
	if s.markWatched == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.markWatched.Execute(ctx, id); err != nil {
		s.logger.Warn("mark watched failed",
			slog.String("movieId", string(id)),
			slog.Any("error", err),
		)
	}
}
