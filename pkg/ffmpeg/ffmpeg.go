// Package ffmpeg shells out to the ffmpeg binary for media inspection and
// thumbnail extraction. The diagnostic-text probe and the command builder are
// the only places that know about ffmpeg's CLI surface.
package ffmpeg

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input     string
	output    string
	preInput  []string // args before -i (like -ss for input seeking)
	postInput []string // args after -i
	filters   []string // collected -vf filters
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	// Pre-input args (seeking)
	args = append(args, c.preInput...)

	// Input
	args = append(args, "-i", c.input)

	// Post-input args
	args = append(args, c.postInput...)

	// Combine video filters
	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}

	// Output
	args = append(args, c.output)

	return args
}

// Run executes the ffmpeg command.
func (c *Command) Run(ctx context.Context) error {
	return run(ctx, c.Build())
}

// RunCapture executes the ffmpeg command and returns both stderr logs and any error.
func (c *Command) RunCapture(ctx context.Context) RunResult {
	return runCapture(ctx, c.Build())
}

// Run executes an ffmpeg command with the given options.
func Run(ctx context.Context, input, output string, opts ...Option) error {
	return NewCommand(input, output, opts...).Run(ctx)
}

// Seek sets the start position (input seeking, before -i).
func Seek(start time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatDuration(start))
	})
}

// Frames limits the number of video frames written to the output.
func Frames(n int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-vframes", strconv.Itoa(n))
	})
}

// ScaleWidth scales to the given width preserving aspect ratio.
func ScaleWidth(width int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, "scale="+strconv.Itoa(width)+":-1")
	})
}

// Scale scales to exact dimensions.
func Scale(width, height int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, "scale="+strconv.Itoa(width)+":"+strconv.Itoa(height))
	})
}

// Quality sets the output quality scale (for JPEG, 1-31, lower is better).
func Quality(q int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-q:v", strconv.Itoa(q))
	})
}

// formatDuration renders a duration as fractional seconds for ffmpeg args.
func formatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
