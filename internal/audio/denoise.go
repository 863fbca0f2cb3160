package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// NoiseReducer removes stationary and slowly varying background noise with
// spectral gating.
type NoiseReducer struct {
	runner Runner
	opts   NoiseOptions
	log    zerolog.Logger
}

func NewNoiseReducer(r Runner, opts NoiseOptions, log zerolog.Logger) *NoiseReducer {
	return &NoiseReducer{runner: r, opts: opts, log: log}
}

// Reduce denoises in into dst. On failure it copies in to dst unchanged and
// returns the copy together with an ErrNoiseReduction StageError, so the
// caller can continue with the returned stream.
func (r *NoiseReducer) Reduce(ctx context.Context, in Stream, ws *Workspace, dst string) (Stream, error) {
	out, err := r.reduce(ctx, in, ws, dst)
	if err == nil {
		return out, nil
	}
	serr := stageErr(StageDenoise, ErrNoiseReduction, err)
	r.log.Warn().Err(err).Str("input", in.Path).Msg("noise reduction failed, passing audio through")
	if cerr := copyFile(in.Path, dst); cerr != nil {
		r.log.Warn().Err(cerr).Msg("pass-through copy failed, keeping input")
		return in, serr
	}
	return Stream{Path: dst, Format: in.Format, Duration: in.Duration}, serr
}

func (r *NoiseReducer) reduce(ctx context.Context, in Stream, ws *Workspace, dst string) (Stream, error) {
	pcm := ws.Path(StageDenoise)
	f := denoiseFormat
	f.SampleRate = in.Format.SampleRate
	if _, err := r.runner.Run(ctx, Request{Input: in.Path, Output: pcm, Format: &f}); err != nil {
		return Stream{}, fmt.Errorf("convert to pcm: %w", err)
	}

	samples, rate, err := readWAV(pcm)
	if err != nil {
		return Stream{}, err
	}
	cleaned, err := ReduceNoise(ctx, samples, rate, r.opts)
	if err != nil {
		return Stream{}, err
	}
	if err := writeWAV(dst, cleaned, rate); err != nil {
		return Stream{}, err
	}

	r.log.Debug().
		Int("samples", len(samples)).
		Int("sample_rate", rate).
		Bool("stationary", r.opts.Stationary).
		Msg("noise reduced")
	return Stream{
		Path:     dst,
		Format:   Format{SampleRate: rate, Channels: 1, SampleFormat: PCMS32},
		Duration: in.Duration,
	}, nil
}

// readWAV decodes a mono integer PCM WAV file into samples in [-1,1].
func readWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() || d.BitDepth == 0 {
		return nil, 0, errors.New("invalid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels != 1 {
		return nil, 0, errors.New("expected mono wav")
	}

	scale := float64(int64(1) << (d.BitDepth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return samples, int(d.SampleRate), nil
}

// writeWAV encodes samples as 32-bit mono PCM.
func writeWAV(path string, samples []float64, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(math.Round(clamp(v, -1, 1) * math.MaxInt32))
	}
	enc := wav.NewEncoder(f, rate, 32, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 32,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish wav: %w", err)
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
