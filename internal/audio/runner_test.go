package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFmpegArgs(t *testing.T) {
	ff := NewFFmpeg("", 0, zerolog.Nop())

	t.Run("extract", func(t *testing.T) {
		f := RecognitionFormat
		got := ff.Args(Request{Input: "in.mp4", Output: "out.wav", Format: &f})
		assert.Equal(t, []string{
			"-hide_banner", "-nostdin", "-nostats", "-y", "-i", "in.mp4", "-vn",
			"-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le", "out.wav",
		}, got)
	})

	t.Run("source_rate_omits_ar", func(t *testing.T) {
		f := CleaningFormat
		got := ff.Args(Request{Input: "in.wav", Output: "out.wav", Format: &f})
		assert.NotContains(t, got, "-ar")
		assert.Contains(t, got, "pcm_f32le")
	})

	t.Run("null_sink_with_filter", func(t *testing.T) {
		got := ff.Args(Request{Input: "in.wav", Filter: FilterChain{Filter("loudnorm", "I", "-16")}, Null: true})
		assert.Equal(t, []string{
			"-hide_banner", "-nostdin", "-nostats", "-y", "-i", "in.wav", "-vn",
			"-af", "loudnorm=I=-16", "-f", "null", "-",
		}, got)
	})
}

func TestNewFFmpegDefaults(t *testing.T) {
	ff := NewFFmpeg("", 0, zerolog.Nop())
	assert.Equal(t, "ffmpeg", ff.path)
	assert.Equal(t, DefaultTimeout, ff.timeout)

	ff = NewFFmpeg("/opt/ffmpeg", time.Second, zerolog.Nop())
	assert.Equal(t, "/opt/ffmpeg", ff.path)
	assert.Equal(t, time.Second, ff.timeout)
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "b | c", lastLines("a\nb\n\nc\n", 2))
	assert.Equal(t, "", lastLines("", 3))
}

// scriptFFmpeg writes a shell script standing in for the ffmpeg binary.
func scriptFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestFFmpegRun(t *testing.T) {
	req := Request{Input: "in.wav", Output: "out.wav"}

	t.Run("diagnostics_captured", func(t *testing.T) {
		ff := NewFFmpeg(scriptFFmpeg(t, `echo "size=N/A time=00:00:01.00" >&2`), time.Second, zerolog.Nop())
		resp, err := ff.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, resp.Diagnostics, "time=00:00:01.00")
	})

	t.Run("exit_status_reports_last_lines", func(t *testing.T) {
		ff := NewFFmpeg(scriptFFmpeg(t, `echo "in.wav: Invalid data found when processing input" >&2; exit 1`), time.Second, zerolog.Nop())
		_, err := ff.Run(context.Background(), req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid data found")
	})

	t.Run("timeout_kills_hung_process", func(t *testing.T) {
		ff := NewFFmpeg(scriptFFmpeg(t, "exec sleep 30"), 50*time.Millisecond, zerolog.Nop())
		start := time.Now()
		_, err := ff.Run(context.Background(), req)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("caller_deadline_propagates", func(t *testing.T) {
		ff := NewFFmpeg(scriptFFmpeg(t, "exec sleep 30"), time.Minute, zerolog.Nop())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := ff.Run(ctx, req)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
