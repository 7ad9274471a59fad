package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"moviestream/internal/domain"
)

// ProbeError reports a failed probe attempt. Partially downloaded files fail
// probing routinely until the moov atom is on disk, so callers usually treat
// this as transient.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("probe %s: %v: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

const maxProbeTimeout = 30 * time.Second

func (p *Prober) Probe(ctx context.Context, filePath string) (domain.MediaInfo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.MediaInfo{}, errors.New("file path is required")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-probesize", "100M",
		"-analyzeduration", "100M",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	info, parseErr := parseProbeOutput(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			return domain.MediaInfo{}, &ProbeError{Path: path, Stderr: strings.TrimSpace(stderr.String()), Err: runErr}
		}
		return domain.MediaInfo{}, &ProbeError{Path: path, Err: parseErr}
	}

	// ffprobe can exit non-zero on partially downloaded files while still
	// printing usable stream metadata. Keep the metadata if we got any.
	if runErr != nil && len(info.Tracks) == 0 {
		return domain.MediaInfo{}, &ProbeError{Path: path, Stderr: strings.TrimSpace(stderr.String()), Err: runErr}
	}

	return info, nil
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// parseProbeOutput parses raw ffprobe JSON output into a domain.MediaInfo.
func parseProbeOutput(data []byte) (domain.MediaInfo, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.MediaInfo{}, err
	}

	info := domain.MediaInfo{
		Container: strings.TrimSpace(payload.Format.FormatName),
	}

	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video", "audio":
			info.Tracks = append(info.Tracks, domain.MediaTrack{
				Index: len(info.Tracks),
				Type:  stream.CodecType,
				Codec: stream.CodecName,
			})
		default:
			continue
		}
		if stream.CodecType == "video" && info.VideoCodec == "" {
			info.VideoCodec = stream.CodecName
		}
		if stream.CodecType == "audio" && info.AudioCodec == "" {
			info.AudioCodec = stream.CodecName
		}
	}

	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			info.Duration = d
		}
	}

	return info, nil
}
