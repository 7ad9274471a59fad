package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "MONGO_URI", "MONGO_DB",
		"LOG_LEVEL", "LOG_FORMAT", "DOWNLOAD_ROOT",
		"SEGMENT_DURATION_SEC", "SWARM_PORT_RANGE", "MAX_RETRIES",
		"RETRY_COOLDOWN_SEC", "SEED_REAP_AFTER_SEC", "EVICT_AFTER_DAYS",
		"PIPELINE_MAX_WORKERS", "FFMPEG_PATH", "FFPROBE_PATH",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"MongoURI", cfg.MongoURI, "mongodb://localhost:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "moviestream"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"DownloadRoot", cfg.DownloadRoot, "downloads"},
		{"SegmentDurationSec", cfg.SegmentDurationSec, 10},
		{"SwarmPortRange", cfg.SwarmPortRange, "6881-6891"},
		{"MaxRetries", cfg.MaxRetries, 3},
		{"RetryCooldownSec", cfg.RetryCooldownSec, 30},
		{"SeedReapAfterSec", cfg.SeedReapAfterSec, 3600},
		{"EvictAfterDays", cfg.EvictAfterDays, 30},
		{"PipelineMaxWorkers", cfg.PipelineMaxWorkers, 4},
		{"FFMPEGPath", cfg.FFMPEGPath, "ffmpeg"},
		{"FFProbePath", cfg.FFProbePath, "ffprobe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":            ":9999",
		"MONGO_DB":             "streaming_test",
		"LOG_LEVEL":            "DEBUG",
		"LOG_FORMAT":           "JSON",
		"DOWNLOAD_ROOT":        "/var/lib/movies",
		"SEGMENT_DURATION_SEC": "600",
		"SWARM_PORT_RANGE":     "7000-7010",
		"MAX_RETRIES":          "5",
		"PIPELINE_MAX_WORKERS": "8",
	})

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MongoDatabase != "streaming_test" {
		t.Errorf("MongoDatabase = %q", cfg.MongoDatabase)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lowercased", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want lowercased", cfg.LogFormat)
	}
	if cfg.DownloadRoot != "/var/lib/movies" {
		t.Errorf("DownloadRoot = %q", cfg.DownloadRoot)
	}
	if cfg.SegmentDurationSec != 600 {
		t.Errorf("SegmentDurationSec = %d", cfg.SegmentDurationSec)
	}
	if cfg.SwarmPortRange != "7000-7010" {
		t.Errorf("SwarmPortRange = %q", cfg.SwarmPortRange)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.PipelineMaxWorkers != 8 {
		t.Errorf("PipelineMaxWorkers = %d", cfg.PipelineMaxWorkers)
	}
}

func TestLoadConfigRejectsNegativeInts(t *testing.T) {
	setEnvs(t, map[string]string{
		"MAX_RETRIES":          "-1",
		"SEGMENT_DURATION_SEC": "not-a-number",
	})

	cfg := LoadConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want fallback 3", cfg.MaxRetries)
	}
	if cfg.SegmentDurationSec != 10 {
		t.Errorf("SegmentDurationSec = %d, want fallback 10", cfg.SegmentDurationSec)
	}
}

func TestPortRange(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantLow  int
		wantHigh int
		wantErr  bool
	}{
		{"Range", "6881-6891", 6881, 6891, false},
		{"SinglePort", "6881", 6881, 6881, false},
		{"Spaces", " 7000 - 7005 ", 7000, 7005, false},
		{"Inverted", "6891-6881", 0, 0, true},
		{"Empty", "", 0, 0, true},
		{"Garbage", "abc-def", 0, 0, true},
		{"TooHigh", "65530-70000", 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{SwarmPortRange: tc.raw}
			low, high, err := cfg.PortRange()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if low != tc.wantLow || high != tc.wantHigh {
				t.Fatalf("PortRange(%q) = (%d,%d), want (%d,%d)", tc.raw, low, high, tc.wantLow, tc.wantHigh)
			}
		})
	}
}
