package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ExtractError reports a failed extraction attempt with the tool's exit code
// and captured stderr.
type ExtractError struct {
	Output   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("extract %s: %v (exit %d): %s", e.Output, e.Err, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("extract %s: %v (exit %d)", e.Output, e.Err, e.ExitCode)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ExtractConfig holds all parameters for building the extraction argument
// list. Value type; pass by value to buildExtractArgs.
type ExtractConfig struct {
	Input       string
	Output      string
	StartSec    float64
	DurationSec float64
	// StreamCopy copies source streams verbatim; the caller decides based on
	// browser compatibility of the source.
	StreamCopy bool
	Preset     string
}

// buildExtractArgs constructs the ffmpeg argument list for cutting one
// fragmented-MP4 segment. Pure function with no side effects.
//
// The input seek (-ss before -i) keeps cuts fast on large files; the
// fragmented profile (frag_keyframe+empty_moov) makes each segment playable
// on its own, before later segments exist.
func buildExtractArgs(cfg ExtractConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(cfg.StartSec),
		"-i", cfg.Input,
		"-t", formatSeconds(cfg.DurationSec),
	}

	if cfg.StreamCopy {
		args = append(args, "-c", "copy")
	} else {
		preset := cfg.Preset
		if preset == "" {
			preset = "ultrafast"
		}
		args = append(args,
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-preset", preset,
			"-c:a", "aac",
		)
	}

	// The output goes to a .part path without an extension, so the container
	// must be named explicitly.
	args = append(args,
		"-movflags", "frag_keyframe+empty_moov",
		"-avoid_negative_ts", "make_zero",
		"-f", "mp4",
		cfg.Output,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Extractor shells out to ffmpeg to cut segments. Output is written to a
// temporary .part file, validated with a probe, and renamed into place, so a
// segment path either does not exist or holds a complete playable file.
type Extractor struct {
	binary string
	prober *Prober
	preset string
	logger *slog.Logger
}

func NewExtractor(binary string, prober *Prober, logger *slog.Logger) *Extractor {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{binary: bin, prober: prober, preset: "ultrafast", logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, src, dst string, startSec, durationSec float64, copyStreams bool) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return errors.New("source and destination paths are required")
	}
	if startSec < 0 || durationSec <= 0 {
		return fmt.Errorf("bad slice [%f, +%f)", startSec, durationSec)
	}

	tmp := dst + ".part"
	args := buildExtractArgs(ExtractConfig{
		Input:       src,
		Output:      tmp,
		StartSec:    startSec,
		DurationSec: durationSec,
		StreamCopy:  copyStreams,
		Preset:      e.preset,
	})

	e.logger.Debug("extracting segment",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Float64("start", startSec),
		slog.Float64("duration", durationSec),
		slog.Bool("copy", copyStreams),
	)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		return &ExtractError{
			Output:   dst,
			ExitCode: exitCode(err),
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	// A cut that ran off the end of the downloaded bytes can exit zero yet
	// leave an unreadable file. Never publish those.
	if e.prober != nil {
		if _, err := e.prober.Probe(ctx, tmp); err != nil {
			_ = os.Remove(tmp)
			return &ExtractError{Output: dst, ExitCode: 0, Stderr: "output failed validation", Err: err}
		}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish segment: %w", err)
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
