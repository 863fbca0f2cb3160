// Package audio turns arbitrary recordings into clean, loudness-normalized
// 16 kHz mono speech audio. Every stage except extraction degrades gracefully:
// a failing stage is logged and the pipeline continues with its input.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// PipelineConfig selects the stages and parameters of a Pipeline.
type PipelineConfig struct {
	// Enhanced extracts at 44.1 kHz and uses the enhanced cleaning chain.
	Enhanced bool
	// Denoise enables spectral noise reduction after cleaning.
	Denoise bool
	// Cleaning overrides the chain implied by Enhanced.
	Cleaning *CleaningOptions
	Noise    NoiseOptions
	Target   LoudnessTarget
	// WorkDir is the parent of per-run workspaces (os.TempDir when empty).
	WorkDir string
}

// DefaultPipelineConfig returns the basic chain with denoising and the
// default loudness target.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Denoise: true,
		Noise:   DefaultNoiseOptions(),
		Target:  DefaultLoudnessTarget(),
	}
}

// StageTiming is the wall time spent in a stage.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Result describes a pipeline run.
type Result struct {
	Output       Stream
	Outcome      Outcome
	Degradations []Degradation
	Measurement  *LoudnessMeasurement
	Timings      []StageTiming
}

// Pipeline runs extraction, cleaning, optional noise reduction and loudness
// normalization in order. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	transcoder    *Transcoder
	cleaner       *CleaningChain
	denoiser      *NoiseReducer
	normalizer    *LoudnessNormalizer
	extractFormat Format
	workDir       string
	log           zerolog.Logger
}

func NewPipeline(r Runner, cfg PipelineConfig, log zerolog.Logger) *Pipeline {
	opts := BasicCleaning()
	extract := CleaningFormat
	if cfg.Enhanced {
		opts = EnhancedCleaning()
		extract = EnhancedFormat
	}
	if cfg.Cleaning != nil {
		opts = *cfg.Cleaning
	}

	p := &Pipeline{
		transcoder:    NewTranscoder(r),
		cleaner:       NewCleaningChain(r, opts),
		normalizer:    NewLoudnessNormalizer(r, cfg.Target, log),
		extractFormat: extract,
		workDir:       cfg.WorkDir,
		log:           log,
	}
	if cfg.Denoise {
		p.denoiser = NewNoiseReducer(r, cfg.Noise, log)
	}
	return p
}

// Run cleans src into dst. Intermediate files live in a workspace that is
// removed before Run returns. An error is returned only when extraction fails
// or when no fallback could produce dst; Result.Outcome is then OutcomeFailed.
func (p *Pipeline) Run(ctx context.Context, src, dst string) (Result, error) {
	res := Result{Outcome: OutcomeFailed}

	ws, err := NewWorkspace(p.workDir, p.log)
	if err != nil {
		return res, err
	}
	defer ws.Close()

	log := p.log.With().Str("src", src).Logger()
	degrade := func(stage Stage, err error, fallback string) {
		log.Warn().Str("stage", string(stage)).Err(err).Str("fallback", fallback).Msg("stage degraded")
		res.Degradations = append(res.Degradations, Degradation{Stage: stage, Err: err, Fallback: fallback})
	}
	timed := func(stage Stage, start time.Time) {
		res.Timings = append(res.Timings, StageTiming{Stage: stage, Duration: time.Since(start)})
	}

	start := time.Now()
	cur, err := p.transcoder.Extract(ctx, src, ws.Path(StageExtract), p.extractFormat)
	timed(StageExtract, start)
	if err != nil {
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	start = time.Now()
	if cleaned, err := p.cleaner.Apply(ctx, cur, ws.Path(StageClean)); err != nil {
		degrade(StageClean, err, "uncleaned audio")
	} else {
		cur = cleaned
	}
	timed(StageClean, start)

	if p.denoiser != nil {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start = time.Now()
		out, err := p.denoiser.Reduce(ctx, cur, ws, ws.Path(StageDenoise))
		if err != nil {
			res.Degradations = append(res.Degradations, Degradation{Stage: StageDenoise, Err: err, Fallback: "audio passed through"})
		}
		cur = out
		timed(StageDenoise, start)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	start = time.Now()
	norm, err := p.normalizer.Normalize(ctx, cur, ws, dst)
	timed(StageNormalize, start)
	res.Measurement = norm.Measurement
	res.Degradations = append(res.Degradations, norm.Degradations...)
	if err != nil {
		degrade(StageFinalize, err, "plain extraction")
		out, xerr := p.transcoder.Extract(ctx, src, dst, RecognitionFormat)
		if xerr != nil {
			if rerr := os.Remove(dst); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warn().Err(rerr).Msg("failed to remove partial output")
			}
			return res, fmt.Errorf("clean %s: %w", src, errors.Join(err, xerr))
		}
		norm.Output = out
	}

	res.Output = norm.Output
	res.Outcome = OutcomeFull
	if len(res.Degradations) > 0 {
		res.Outcome = OutcomeDegraded
	}
	log.Info().
		Str("outcome", res.Outcome.String()).
		Int("degradations", len(res.Degradations)).
		Dur("duration", res.Output.Duration).
		Msg("audio cleaned")
	return res, nil
}
