package domain

import "strings"

type MediaTrack struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Codec string `json:"codec"`
}

// MediaInfo is the probed shape of a media file.
type MediaInfo struct {
	// Container is the demuxer name list as reported by the probe tool,
	// e.g. "mov,mp4,m4a,3gp,3g2,mj2".
	Container  string       `json:"container"`
	VideoCodec string       `json:"videoCodec"`
	AudioCodec string       `json:"audioCodec"`
	Duration   float64      `json:"duration"`
	Tracks     []MediaTrack `json:"tracks,omitempty"`
}

// BrowserCompatible reports whether the file can be served to browsers with
// plain stream copy: MP4 container, H.264 video, AAC audio. Files without an
// audio track count as compatible; there is nothing to transcode.
func (m MediaInfo) BrowserCompatible() bool {
	if !strings.Contains(m.Container, "mp4") {
		return false
	}
	switch m.VideoCodec {
	case "h264", "avc1":
	default:
		return false
	}
	return m.AudioCodec == "" || m.AudioCodec == "aac"
}
