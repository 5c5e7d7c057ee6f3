package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// ThumbnailOptions configures single-frame extraction.
type ThumbnailOptions struct {
	TimestampSeconds float64 // Where to extract from (default: 1s)
	Width            int     // Output width (default: 320)
	Height           int     // Output height; 0 preserves aspect ratio
	Quality          int     // JPEG quality 1-31, lower is better (default: 4)
}

func (o *ThumbnailOptions) applyDefaults() {
	if o.TimestampSeconds <= 0 {
		o.TimestampSeconds = 1
	}
	if o.Width <= 0 {
		o.Width = 320
	}
	if o.Quality <= 0 {
		o.Quality = 4
	}
}

// Processor wraps the ffmpeg binary behind a narrow media-processing API.
// All operations materialize byte sources to temporary files and guarantee
// cleanup on both success and failure paths.
type Processor struct{}

// NewProcessor returns a Processor using the ffmpeg binary on PATH.
func NewProcessor() *Processor {
	return &Processor{}
}

// ExtractMetadata probes the source and returns duration, size, bitrate and
// video stream info. Parse misses surface as *ProcessingError.
func (p *Processor) ExtractMetadata(ctx context.Context, src Source) (*Metadata, error) {
	path, cleanup, err := src.materialize()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return Inspect(ctx, path)
}

// GenerateThumbnail seeks to the configured timestamp, extracts exactly one
// frame, scales it and returns the encoded JPEG bytes.
func (p *Processor) GenerateThumbnail(ctx context.Context, src Source, opts ThumbnailOptions) ([]byte, error) {
	opts.applyDefaults()

	path, cleanup, err := src.materialize()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return extractFrame(ctx, path, opts)
}

// GenerateThumbnails extracts count frames at timestamps evenly spaced
// strictly between the start and end of the clip, concurrently.
func (p *Processor) GenerateThumbnails(ctx context.Context, src Source, count int, opts ThumbnailOptions) ([][]byte, error) {
	if count <= 0 {
		return nil, &ProcessingError{Op: "generate thumbnails", Reason: fmt.Sprintf("invalid count %d", count)}
	}
	opts.applyDefaults()

	path, cleanup, err := src.materialize()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	meta, err := Inspect(ctx, path)
	if err != nil {
		return nil, err
	}

	timestamps := SpreadTimestamps(meta.DurationSeconds, count)

	thumbs := make([][]byte, count)
	g, gctx := errgroup.WithContext(ctx)
	for i, ts := range timestamps {
		frameOpts := opts
		frameOpts.TimestampSeconds = ts
		g.Go(func() error {
			data, err := extractFrame(gctx, path, frameOpts)
			if err != nil {
				return err
			}
			thumbs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return thumbs, nil
}

// SpreadTimestamps returns count seek offsets evenly spaced strictly between
// 0 and duration: duration/(count+1) * (i+1).
func SpreadTimestamps(duration float64, count int) []float64 {
	timestamps := make([]float64, count)
	for i := range timestamps {
		timestamps[i] = duration / float64(count+1) * float64(i+1)
	}
	return timestamps
}

// thumbnailArgs builds the extraction command for a single frame.
func thumbnailArgs(input, output string, opts ThumbnailOptions) []string {
	scale := ScaleWidth(opts.Width)
	if opts.Height > 0 {
		scale = Scale(opts.Width, opts.Height)
	}
	return NewCommand(input, output,
		Seek(time.Duration(opts.TimestampSeconds*float64(time.Second))),
		Frames(1),
		Quality(opts.Quality),
		scale,
	).Build()
}

// extractFrame runs the single-frame extraction and reads the result back.
// The temporary output file is removed regardless of outcome.
func extractFrame(ctx context.Context, input string, opts ThumbnailOptions) ([]byte, error) {
	output := tempPath("thumb", ".jpg")
	defer os.Remove(output)

	if err := run(ctx, thumbnailArgs(input, output, opts)); err != nil {
		return nil, &ProcessingError{Op: "generate thumbnail", Reason: "ffmpeg failed", Err: err}
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, &ProcessingError{Op: "generate thumbnail", Reason: "read output", Err: err}
	}
	if len(data) == 0 {
		return nil, &ProcessingError{Op: "generate thumbnail", Reason: "empty output"}
	}

	return data, nil
}
