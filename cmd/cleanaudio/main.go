// Command cleanaudio runs the speech cleaning pipeline on local files and
// merges word timestamps with speaker turns, without the service around it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/audio"
	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

var version = "dev"

// CLI defines the command-line interface.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version information."`
	Verbose bool             `help:"Log every ffmpeg invocation."`

	Clean CleanCmd `cmd:"" help:"Extract, clean, denoise and loudness-normalize audio files."`
	Merge MergeCmd `cmd:"" help:"Attribute transcript words to speakers and print speaker chunks."`
}

// CleanCmd runs the audio pipeline on each input file.
type CleanCmd struct {
	Files     []string      `arg:"" name:"files" help:"Audio or video files to process." type:"existingfile"`
	Output    string        `short:"o" type:"path" help:"Output directory (default: next to each input)."`
	Enhanced  bool          `help:"Extract at 44.1 kHz and use the enhanced cleaning chain."`
	NoDenoise bool          `name:"no-denoise" help:"Skip spectral noise reduction."`
	TargetI   float64       `name:"target-i" default:"-16" help:"Integrated loudness target in LUFS."`
	TargetLRA float64       `name:"target-lra" default:"7" help:"Loudness range target in LU."`
	TargetTP  float64       `name:"target-tp" default:"-1.5" help:"True peak limit in dBTP."`
	FFmpeg    string        `default:"ffmpeg" help:"Path to the ffmpeg binary."`
	Timeout   time.Duration `default:"10m" help:"Per-invocation ffmpeg timeout."`
}

// MergeCmd aligns words with diarization turns.
type MergeCmd struct {
	Words string        `arg:"" type:"existingfile" help:"JSON array of {text,start,end} words."`
	Turns string        `arg:"" type:"existingfile" help:"JSON array of {start,end,speaker} turns."`
	Gap   time.Duration `default:"300ms" help:"Silence that splits a speaker chunk."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("cleanaudio"),
		kong.Description("Speech audio cleaning and speaker merge tools"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	level := zerolog.InfoLevel
	if cli.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(log)
	kctx.FatalIfErrorf(kctx.Run())
}

// Run processes each file in turn, continuing past failures.
func (c *CleanCmd) Run(ctx context.Context, log zerolog.Logger) error {
	if c.Output != "" {
		if err := os.MkdirAll(c.Output, 0o755); err != nil {
			return err
		}
	}
	cfg := audio.DefaultPipelineConfig()
	cfg.Enhanced = c.Enhanced
	cfg.Denoise = !c.NoDenoise
	cfg.Target = audio.LoudnessTarget{I: c.TargetI, LRA: c.TargetLRA, TP: c.TargetTP}
	p := audio.NewPipeline(audio.NewFFmpeg(c.FFmpeg, c.Timeout, log), cfg, log)

	failed := 0
	for _, src := range c.Files {
		dst := c.outputPath(src)
		start := time.Now()
		res, err := p.Run(ctx, src, dst)
		if err != nil {
			failed++
			log.Error().Err(err).Str("file", src).Msg("processing failed")
			continue
		}

		ev := log.Info().
			Str("file", src).
			Str("output", dst).
			Str("outcome", res.Outcome.String()).
			Dur("duration", res.Output.Duration).
			Dur("elapsed", time.Since(start))
		if m := res.Measurement; m != nil {
			ev = ev.Float64("input_i", m.IntegratedLoudness).Float64("input_tp", m.TruePeak)
		}
		ev.Msg("processed")

		for _, d := range res.Degradations {
			log.Warn().Str("file", src).Str("stage", string(d.Stage)).Err(d.Err).Str("fallback", d.Fallback).Msg("stage degraded")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(c.Files))
	}
	return nil
}

func (c *CleanCmd) outputPath(src string) string {
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + "-clean.wav"
	if c.Output != "" {
		return filepath.Join(c.Output, name)
	}
	return filepath.Join(filepath.Dir(src), name)
}

// Run prints the merged speaker chunks as JSON on stdout.
func (m *MergeCmd) Run() error {
	var words []transcript.Word
	if err := readJSON(m.Words, &words); err != nil {
		return err
	}
	var turns []transcript.SpeakerTurn
	if err := readJSON(m.Turns, &turns); err != nil {
		return err
	}

	chunks := transcript.Merge(words, turns, transcript.Options{GapThreshold: m.Gap})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(chunks)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
