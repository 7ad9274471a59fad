package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "moviestream/internal/api/http"
	"moviestream/internal/app"
	"moviestream/internal/metrics"
	mongorepo "moviestream/internal/repository/mongo"
	"moviestream/internal/services/media/ffmpeg"
	swarmeng "moviestream/internal/services/swarm/anacrolix"
	"moviestream/internal/storage/segments"
	"moviestream/internal/telemetry"
	"moviestream/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "moviestream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	downloadRoot, err := filepath.Abs(cfg.DownloadRoot)
	if err != nil {
		logger.Error("resolve download root failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("service", "moviestream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("downloadRoot", downloadRoot),
		slog.String("swarmPorts", cfg.SwarmPortRange),
		slog.Int("segmentDurationSec", cfg.SegmentDurationSec),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo := mongorepo.NewRepository(mongoClient, cfg.MongoDatabase, "movie_assets")
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	store, err := segments.New(downloadRoot)
	if err != nil {
		logger.Error("segment store init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	portLow, portHigh, err := cfg.PortRange()
	if err != nil {
		logger.Error("swarm port range invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	swarm, err := swarmeng.New(swarmeng.Config{
		DataRoot:      downloadRoot,
		PortLow:       portLow,
		PortHigh:      portHigh,
		SeedReapAfter: time.Duration(cfg.SeedReapAfterSec) * time.Second,
	})
	if err != nil {
		logger.Error("swarm engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	prober := ffmpeg.NewProber(cfg.FFProbePath)
	extractor := ffmpeg.NewExtractor(cfg.FFMPEGPath, prober, logger)

	segmentDuration := time.Duration(cfg.SegmentDurationSec) * time.Second
	evictTTL := time.Duration(cfg.EvictAfterDays) * 24 * time.Hour

	worker := usecase.ProcessMovie{
		Repo:            repo,
		Store:           store,
		Swarm:           swarm,
		Prober:          prober,
		Extractor:       extractor,
		SegmentDuration: segmentDuration,
		MaxRetries:      cfg.MaxRetries,
		RetryCooldown:   time.Duration(cfg.RetryCooldownSec) * time.Second,
	}
	pipelines := usecase.NewPipelineManager(rootCtx, worker, cfg.PipelineMaxWorkers)

	startUC := usecase.StartStream{
		Repo:       repo,
		Store:      store,
		Swarm:      swarm,
		Pipeline:   pipelines,
		EvictAfter: evictTTL,
	}
	statusUC := usecase.GetAssetStatus{Repo: repo, Store: store, SegmentDuration: segmentDuration}
	segmentsUC := usecase.ListAssetSegments{Repo: repo, Store: store, SegmentDuration: segmentDuration}
	resolveUC := usecase.ResolveSegment{Repo: repo, Store: store}
	watchedUC := usecase.MarkWatched{Repo: repo}

	// Pick interrupted downloads back up from the previous run. Runs in the
	// background so HTTP comes up immediately.
	go func() {
		resumeUC := usecase.ResumeInterrupted{Repo: repo, Pipeline: pipelines}
		if n, err := resumeUC.Execute(rootCtx); err != nil {
			logger.Warn("resume interrupted assets failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("resumed interrupted assets", slog.Int("count", n))
		}
	}()

	evictUC := usecase.EvictStale{Repo: repo, Store: store, Swarm: swarm, TTL: evictTTL}
	go evictUC.Run(rootCtx)

	handler := apihttp.NewServer(startUC,
		apihttp.WithAssetStatus(statusUC),
		apihttp.WithListSegments(segmentsUC),
		apihttp.WithResolveSegment(resolveUC),
		apihttp.WithMarkWatched(watchedUC),
		apihttp.WithRepository(repo),
		apihttp.WithPipelineCounter(pipelines),
		apihttp.WithLogger(logger),
	)

	go runSamplers(rootCtx, handler, downloadRoot)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // streaming responses run as long as playback does
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := pipelines.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pipeline shutdown error", slog.String("error", err.Error()))
	}
	if err := swarm.Close(); err != nil {
		logger.Warn("swarm close error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// runSamplers pushes asset summaries to WebSocket clients and keeps the
// download-root usage gauge fresh.
func runSamplers(ctx context.Context, handler *apihttp.Server, downloadRoot string) {
	wsTicker := time.NewTicker(5 * time.Second)
	storageTicker := time.NewTicker(30 * time.Second)
	defer wsTicker.Stop()
	defer storageTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wsTicker.C:
			handler.BroadcastAssets()
		case <-storageTicker.C:
			usage := app.ScanStorageUsage(downloadRoot)
			metrics.DownloadRootBytes.Set(float64(usage.SizeBytes))
			metrics.DownloadRootAllocatedBytes.Set(float64(usage.AllocatedBytes))
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
