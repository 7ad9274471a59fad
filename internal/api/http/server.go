package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moviestream/internal/domain"
	domainports "moviestream/internal/domain/ports"
	"moviestream/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type StartStreamUseCase interface {
	Execute(ctx context.Context, input usecase.StartStreamInput) (domain.MovieAsset, error)
}

type AssetStatusUseCase interface {
	Execute(ctx context.Context, id domain.MovieID) (usecase.StatusView, error)
}

type ListSegmentsUseCase interface {
	Execute(ctx context.Context, id domain.MovieID) (usecase.SegmentListing, error)
}

type ResolveSegmentUseCase interface {
	Execute(ctx context.Context, id domain.MovieID, segment int) (usecase.ResolvedSegment, error)
}

type MarkWatchedUseCase interface {
	Execute(ctx context.Context, id domain.MovieID) error
}

// PipelineCounter is what the health endpoint reports about the worker pool.
type PipelineCounter interface {
	ActiveCount() int
}

type Server struct {
	startStream    StartStreamUseCase
	assetStatus    AssetStatusUseCase
	listSegments   ListSegmentsUseCase
	resolveSegment ResolveSegmentUseCase
	markWatched    MarkWatchedUseCase
	repo           domainports.AssetRepository
	pipelines      PipelineCounter
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithAssetStatus(uc AssetStatusUseCase) ServerOption {
	return func(s *Server) {
		s.assetStatus = uc
	}
}

func WithListSegments(uc ListSegmentsUseCase) ServerOption {
	return func(s *Server) {
		s.listSegments = uc
	}
}

func WithResolveSegment(uc ResolveSegmentUseCase) ServerOption {
	return func(s *Server) {
		s.resolveSegment = uc
	}
}

func WithMarkWatched(uc MarkWatchedUseCase) ServerOption {
	return func(s *Server) {
		s.markWatched = uc
	}
}

func WithRepository(repo domainports.AssetRepository) ServerOption {
	return func(s *Server) {
		s.repo = repo
	}
}

func WithPipelineCounter(counter PipelineCounter) ServerOption {
	return func(s *Server) {
		s.pipelines = counter
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(start StartStreamUseCase, opts ...ServerOption) *Server {
	s := &Server{startStream: start}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/video/", s.handleVideo)
	mux.HandleFunc("/internal/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "moviestream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health" && p != "/ws"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// handleVideo routes /video/{id}/{action}.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/video/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.NotFound(w, r)
		return
	}
	id := domain.MovieID(parts[0])

	switch parts[1] {
	case "start":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStartStream(w, r, id)
	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleAssetStatus(w, r, id)
	case "segments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleListSegments(w, r, id)
	case "stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleStreamSegment(w, r, id)
	case "file-status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleFileStatus(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	ActivePipelines int    `json:"active_pipelines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.pipelines != nil {
		resp.ActivePipelines = s.pipelines.ActiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastAssets lists all assets and pushes their wire summaries to every
// connected WebSocket client. Called on a timer from main.
func (s *Server) BroadcastAssets() {
	if s.wsHub == nil || s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assets, err := s.repo.List(ctx, domain.AssetFilter{})
	if err != nil {
		s.logger.Debug("ws broadcast assets failed", slog.String("error", err.Error()))
		return
	}
	summaries := make([]assetSummary, 0, len(assets))
	for _, asset := range assets {
		summaries = append(summaries, newAssetSummary(asset))
	}
	s.wsHub.Broadcast("assets", summaries)
}

type assetSummary struct {
	MovieID     domain.MovieID     `json:"movie_id"`
	Status      domain.AssetStatus `json:"status"`
	Progress    float64            `json:"progress"`
	Ready       bool               `json:"ready"`
	Downloading bool               `json:"downloading"`
}

func newAssetSummary(asset domain.MovieAsset) assetSummary {
	return assetSummary{
		MovieID:     asset.ID,
		Status:      asset.Status,
		Progress:    asset.Progress,
		Ready:       asset.Status.Streamable(),
		Downloading: asset.Status.InProgress(),
	}
}
