package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Request is one transcoder invocation: read Input, apply Filter, and write
// Output in Format. Null discards the output and is used for measurement passes.
type Request struct {
	Input  string
	Output string
	Filter FilterChain
	Format *Format
	Null   bool
}

// Response carries the transcoder's diagnostic stream (stderr).
type Response struct {
	Diagnostics string
}

// Runner executes transcoder requests.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// DefaultTimeout bounds a single ffmpeg invocation.
const DefaultTimeout = 10 * time.Minute

// waitDelay bounds how long Run waits for output pipes after ffmpeg is killed.
const waitDelay = 5 * time.Second

// FFmpeg runs requests with the ffmpeg command-line tool.
type FFmpeg struct {
	path    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewFFmpeg returns a runner for the ffmpeg binary at path ("ffmpeg" when
// empty). A non-positive timeout uses DefaultTimeout.
func NewFFmpeg(path string, timeout time.Duration, log zerolog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FFmpeg{path: path, timeout: timeout, log: log}
}

// Args renders the command-line arguments for req.
func (f *FFmpeg) Args(req Request) []string {
	args := []string{"-hide_banner", "-nostdin", "-nostats", "-y", "-i", req.Input, "-vn"}
	if len(req.Filter) > 0 {
		args = append(args, "-af", req.Filter.String())
	}
	if req.Format != nil {
		if req.Format.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(req.Format.Channels))
		}
		if req.Format.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(req.Format.SampleRate))
		}
		if req.Format.SampleFormat != "" {
			args = append(args, "-acodec", string(req.Format.SampleFormat))
		}
	}
	if req.Null {
		return append(args, "-f", "null", "-")
	}
	return append(args, req.Output)
}

// Run executes ffmpeg under a per-call timeout derived from ctx.
func (f *FFmpeg) Run(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := f.Args(req)
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	resp := Response{Diagnostics: stderr.String()}
	f.log.Debug().
		Str("input", req.Input).
		Str("filter", req.Filter.String()).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("ffmpeg finished")

	if ctx.Err() != nil {
		return resp, fmt.Errorf("ffmpeg: %w", ctx.Err())
	}
	if err != nil {
		return resp, fmt.Errorf("ffmpeg: %w: %s", err, lastLines(resp.Diagnostics, 3))
	}
	return resp, nil
}

// lastLines returns the final n non-empty lines of s joined by " | ".
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			out = append([]string{l}, out...)
		}
	}
	return strings.Join(out, " | ")
}
