package ffmpeg

import (
	"context"
	"strings"
	"testing"
)

func argsString(args []string) string {
	return strings.Join(args, " ")
}

func TestBuildExtractArgsCopy(t *testing.T) {
	args := buildExtractArgs(ExtractConfig{
		Input:       "/data/movies/42/movie.mp4",
		Output:      "/data/movies/42/movie_segment_003.mp4.part",
		StartSec:    30,
		DurationSec: 10,
		StreamCopy:  true,
	})
	joined := argsString(args)

	if !strings.Contains(joined, "-ss 30.000 -i /data/movies/42/movie.mp4 -t 10.000") {
		t.Fatalf("seek/input/duration wrong: %s", joined)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Fatalf("expected stream copy: %s", joined)
	}
	if strings.Contains(joined, "libx264") {
		t.Fatalf("copy mode must not re-encode: %s", joined)
	}
	if !strings.Contains(joined, "-movflags frag_keyframe+empty_moov") {
		t.Fatalf("expected fragmented MP4 flags: %s", joined)
	}
	if !strings.Contains(joined, "-f mp4") {
		t.Fatalf("expected explicit mp4 container: %s", joined)
	}
	if args[len(args)-1] != "/data/movies/42/movie_segment_003.mp4.part" {
		t.Fatalf("output must be last arg: %s", joined)
	}
}

func TestBuildExtractArgsTranscode(t *testing.T) {
	args := buildExtractArgs(ExtractConfig{
		Input:       "/data/movies/42/movie.mkv",
		Output:      "/data/movies/42/movie_segment_000.mp4.part",
		StartSec:    0,
		DurationSec: 10,
		StreamCopy:  false,
		Preset:      "ultrafast",
	})
	joined := argsString(args)

	if !strings.Contains(joined, "-c:v libx264") {
		t.Fatalf("expected H.264 encode: %s", joined)
	}
	if !strings.Contains(joined, "-c:a aac") {
		t.Fatalf("expected AAC encode: %s", joined)
	}
	if !strings.Contains(joined, "-preset ultrafast") {
		t.Fatalf("expected ultrafast preset: %s", joined)
	}
	if !strings.Contains(joined, "-pix_fmt yuv420p") {
		t.Fatalf("expected yuv420p: %s", joined)
	}
	if !strings.Contains(joined, "-movflags frag_keyframe+empty_moov") {
		t.Fatalf("expected fragmented MP4 flags: %s", joined)
	}
	if strings.Contains(joined, "-c copy") {
		t.Fatalf("transcode mode must not copy: %s", joined)
	}
}

func TestBuildExtractArgsDefaultsPreset(t *testing.T) {
	args := buildExtractArgs(ExtractConfig{
		Input:       "in",
		Output:      "out",
		DurationSec: 10,
	})
	if !strings.Contains(argsString(args), "-preset ultrafast") {
		t.Fatalf("expected default preset: %s", argsString(args))
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.000"},
		{30, "30.000"},
		{12.5, "12.500"},
		{3599.999, "3599.999"},
	}
	for _, tc := range tests {
		if got := formatSeconds(tc.in); got != tc.want {
			t.Fatalf("formatSeconds(%f) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	e := NewExtractor("ffmpeg", nil, nil)
	ctx := context.Background()

	if err := e.Extract(ctx, "", "dst", 0, 10, true); err == nil {
		t.Fatal("expected error for missing src")
	}
	if err := e.Extract(ctx, "src", "", 0, 10, true); err == nil {
		t.Fatal("expected error for missing dst")
	}
	if err := e.Extract(ctx, "src", "dst", -1, 10, true); err == nil {
		t.Fatal("expected error for negative start")
	}
	if err := e.Extract(ctx, "src", "dst", 0, 0, true); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestExtractErrorMessage(t *testing.T) {
	err := &ExtractError{
		Output:   "/tmp/seg.mp4",
		ExitCode: 1,
		Stderr:   "moov atom not found",
		Err:      context.DeadlineExceeded,
	}
	msg := err.Error()
	if !strings.Contains(msg, "moov atom not found") {
		t.Fatalf("stderr missing from message: %s", msg)
	}
	if !strings.Contains(msg, "exit 1") {
		t.Fatalf("exit code missing from message: %s", msg)
	}
}
