package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// VideoInfo describes the first video stream of a probed file.
type VideoInfo struct {
	Width     int
	Height    int
	FrameRate float64
}

// Metadata contains media file metadata extracted from ffmpeg diagnostics.
type Metadata struct {
	DurationSeconds float64
	SizeBytes       int64
	BitRate         int64 // bits per second, 0 when ffmpeg does not report one
	Video           *VideoInfo
}

// Resolution renders the video dimensions as "WIDTHxHEIGHT", or "" when the
// file has no video stream.
func (m *Metadata) Resolution() string {
	if m.Video == nil {
		return ""
	}
	return fmt.Sprintf("%dx%d", m.Video.Width, m.Video.Height)
}

// ProcessingError is returned when the media tool fails or when its diagnostic
// output cannot be parsed. A parse miss is never silently defaulted to zero.
type ProcessingError struct {
	Op     string
	Reason string
	Err    error
}

// Error implements error.
func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ffmpeg prints stream diagnostics to stderr in a stable-enough human format.
// This is a brittle, format-coupled contract; keep every pattern in one place
// so a structured probe mode can replace it without touching callers.
var (
	durationPattern = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2}\.\d+)`)
	videoPattern    = regexp.MustCompile(`Stream.*Video:.*?(\d{3,5})x(\d{3,5})`)
	bitRatePattern  = regexp.MustCompile(`bitrate: (\d+) kb/s`)
	fpsPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?) fps`)
)

// defaultFrameRate is assumed when the stream line carries no fps figure.
const defaultFrameRate = 30

// Inspect runs ffmpeg against the file at path and parses its diagnostic
// output into Metadata. The file size is read from the filesystem, not from
// the tool. A missing duration or resolution surfaces as *ProcessingError.
func Inspect(ctx context.Context, path string) (*Metadata, error) {
	result := runCapture(ctx, []string{"-hide_banner", "-i", path, "-f", "null", "-"})
	if result.Err != nil {
		return nil, &ProcessingError{Op: "extract metadata", Reason: "ffmpeg failed", Err: result.Err}
	}

	meta, err := parseDiagnostics(result.Logs)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &ProcessingError{Op: "extract metadata", Reason: "stat input", Err: err}
	}
	meta.SizeBytes = info.Size()

	return meta, nil
}

// parseDiagnostics extracts duration, resolution and bitrate from ffmpeg's
// stderr diagnostic text.
func parseDiagnostics(output string) (*Metadata, error) {
	meta := &Metadata{}

	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, &ProcessingError{Op: "extract metadata", Reason: "no duration in ffmpeg output"}
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.ParseFloat(m[3], 64)
	meta.DurationSeconds = float64(hours)*3600 + float64(minutes)*60 + seconds

	v := videoPattern.FindStringSubmatch(output)
	if v == nil {
		return nil, &ProcessingError{Op: "extract metadata", Reason: "no video stream in ffmpeg output"}
	}
	width, _ := strconv.Atoi(v[1])
	height, _ := strconv.Atoi(v[2])
	meta.Video = &VideoInfo{
		Width:     width,
		Height:    height,
		FrameRate: defaultFrameRate,
	}
	if f := fpsPattern.FindStringSubmatch(output); f != nil {
		if fps, err := strconv.ParseFloat(f[1], 64); err == nil && fps > 0 {
			meta.Video.FrameRate = fps
		}
	}

	if b := bitRatePattern.FindStringSubmatch(output); b != nil {
		kbps, _ := strconv.ParseInt(b[1], 10, 64)
		meta.BitRate = kbps * 1000
	}

	return meta, nil
}
