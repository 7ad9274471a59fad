package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	LogLevel      string
	LogFormat     string

	// DownloadRoot is where movie directories live. Resolved to an absolute
	// path at startup.
	DownloadRoot string

	SegmentDurationSec int
	SwarmPortRange     string
	MaxRetries         int
	RetryCooldownSec   int
	SeedReapAfterSec   int
	EvictAfterDays     int
	PipelineMaxWorkers int

	FFMPEGPath  string
	FFProbePath string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB", "moviestream"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DownloadRoot: getEnv("DOWNLOAD_ROOT", "downloads"),

		SegmentDurationSec: int(getEnvInt64("SEGMENT_DURATION_SEC", 10)),
		SwarmPortRange:     getEnv("SWARM_PORT_RANGE", "6881-6891"),
		MaxRetries:         int(getEnvInt64("MAX_RETRIES", 3)),
		RetryCooldownSec:   int(getEnvInt64("RETRY_COOLDOWN_SEC", 30)),
		SeedReapAfterSec:   int(getEnvInt64("SEED_REAP_AFTER_SEC", 3600)),
		EvictAfterDays:     int(getEnvInt64("EVICT_AFTER_DAYS", 30)),
		PipelineMaxWorkers: int(getEnvInt64("PIPELINE_MAX_WORKERS", 4)),

		FFMPEGPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath: getEnv("FFPROBE_PATH", "ffprobe"),
	}
}

// PortRange parses SwarmPortRange ("6881-6891" or a single port) into an
// inclusive [low, high] pair.
func (c Config) PortRange() (int, int, error) {
	raw := strings.TrimSpace(c.SwarmPortRange)
	if raw == "" {
		return 0, 0, fmt.Errorf("empty port range")
	}
	parts := strings.SplitN(raw, "-", 2)
	low, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", raw, err)
	}
	high := low
	if len(parts) == 2 {
		high, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q: %w", raw, err)
		}
	}
	if low < 1 || high > 65535 || high < low {
		return 0, 0, fmt.Errorf("invalid port range %q", raw)
	}
	return low, high, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
