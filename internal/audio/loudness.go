package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// LoudnessTarget is an EBU R128 target: integrated loudness (LUFS), loudness
// range (LU) and true peak (dBTP).
type LoudnessTarget struct {
	I   float64
	LRA float64
	TP  float64
}

// DefaultLoudnessTarget returns the speech target used unless configured.
func DefaultLoudnessTarget() LoudnessTarget {
	return LoudnessTarget{I: -16, LRA: 7, TP: -1.5}
}

func (t LoudnessTarget) params() []string {
	return []string{"I", FormatFloat(t.I), "LRA", FormatFloat(t.LRA), "TP", FormatFloat(t.TP)}
}

// LoudnessMeasurement holds the first-pass statistics reported by loudnorm.
type LoudnessMeasurement struct {
	IntegratedLoudness float64 `json:"input_i"`
	LoudnessRange      float64 `json:"input_lra"`
	TruePeak           float64 `json:"input_tp"`
	Threshold          float64 `json:"input_thresh"`
	TargetOffset       float64 `json:"target_offset"`
}

// loudnormStats mirrors loudnorm's JSON block. ffmpeg prints the values as
// strings; raw messages also accept bare numbers.
type loudnormStats struct {
	InputI       json.RawMessage `json:"input_i"`
	InputLRA     json.RawMessage `json:"input_lra"`
	InputTP      json.RawMessage `json:"input_tp"`
	InputThresh  json.RawMessage `json:"input_thresh"`
	TargetOffset json.RawMessage `json:"target_offset"`
}

// ParseMeasurement extracts the loudnorm statistics from a diagnostic stream.
// The object is taken between the last '{' and the last '}' after it. Every
// field must be present and finite, otherwise the error wraps
// ErrMeasurementParse.
func ParseMeasurement(diag string) (LoudnessMeasurement, error) {
	start := strings.LastIndex(diag, "{")
	if start == -1 {
		return LoudnessMeasurement{}, fmt.Errorf("%w: no JSON object in %d bytes of output", ErrMeasurementParse, len(diag))
	}
	end := strings.LastIndex(diag[start:], "}")
	if end == -1 {
		return LoudnessMeasurement{}, fmt.Errorf("%w: unterminated JSON object", ErrMeasurementParse)
	}

	var stats loudnormStats
	if err := json.Unmarshal([]byte(diag[start:start+end+1]), &stats); err != nil {
		return LoudnessMeasurement{}, fmt.Errorf("%w: %v", ErrMeasurementParse, err)
	}

	var (
		m    LoudnessMeasurement
		errs []error
	)
	for _, f := range []struct {
		name string
		raw  json.RawMessage
		dst  *float64
	}{
		{"input_i", stats.InputI, &m.IntegratedLoudness},
		{"input_lra", stats.InputLRA, &m.LoudnessRange},
		{"input_tp", stats.InputTP, &m.TruePeak},
		{"input_thresh", stats.InputThresh, &m.Threshold},
		{"target_offset", stats.TargetOffset, &m.TargetOffset},
	} {
		v, err := parseStat(f.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.dst = v
	}
	if len(errs) > 0 {
		return LoudnessMeasurement{}, fmt.Errorf("%w: %w", ErrMeasurementParse, errors.Join(errs...))
	}
	return m, nil
}

func parseStat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing")
	}
	text := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = s
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("non-finite value %q", text)
	}
	return v, nil
}

// LoudnessNormalizer runs measurement-driven two-pass loudness correction.
type LoudnessNormalizer struct {
	runner Runner
	target LoudnessTarget
	log    zerolog.Logger
}

func NewLoudnessNormalizer(r Runner, target LoudnessTarget, log zerolog.Logger) *LoudnessNormalizer {
	return &LoudnessNormalizer{runner: r, target: target, log: log}
}

// Target returns the configured loudness target.
func (n *LoudnessNormalizer) Target() LoudnessTarget { return n.target }

// MeasureFilter is the analysis-only loudnorm pass.
func (n *LoudnessNormalizer) MeasureFilter() FilterChain {
	return FilterChain{Filter("loudnorm", append(n.target.params(), "print_format", "json")...)}
}

// CorrectFilter is the second, linear loudnorm pass seeded with m.
func (n *LoudnessNormalizer) CorrectFilter(m LoudnessMeasurement) FilterChain {
	kv := append(n.target.params(),
		"measured_I", FormatFloat(m.IntegratedLoudness),
		"measured_LRA", FormatFloat(m.LoudnessRange),
		"measured_TP", FormatFloat(m.TruePeak),
		"measured_thresh", FormatFloat(m.Threshold),
		"offset", FormatFloat(m.TargetOffset),
		"linear", "true",
	)
	return FilterChain{Filter("loudnorm", kv...)}
}

// SinglePassFilter is the target-only loudnorm used without a measurement.
func (n *LoudnessNormalizer) SinglePassFilter() FilterChain {
	return FilterChain{Filter("loudnorm", n.target.params()...)}
}

// FinalizeFilter resamples to the recognition rate and caps peaks below full scale.
func FinalizeFilter() FilterChain {
	return FilterChain{
		{Name: "aresample", Params: []Param{
			{Value: strconv.Itoa(RecognitionFormat.SampleRate)},
			{Key: "resampler", Value: "soxr"},
			{Key: "precision", Value: "28"},
		}},
		Filter("alimiter", "limit", "0.97"),
	}
}

// Measure runs the analysis pass over in and parses its statistics.
func (n *LoudnessNormalizer) Measure(ctx context.Context, in Stream) (LoudnessMeasurement, error) {
	resp, err := n.runner.Run(ctx, Request{Input: in.Path, Filter: n.MeasureFilter(), Null: true})
	if err != nil {
		return LoudnessMeasurement{}, stageErr(StageMeasure, ErrNormalization, err)
	}
	m, err := ParseMeasurement(resp.Diagnostics)
	if err != nil {
		return LoudnessMeasurement{}, stageErr(StageMeasure, ErrMeasurementParse, err)
	}
	return m, nil
}

// Correct applies the linear second pass using m.
func (n *LoudnessNormalizer) Correct(ctx context.Context, in Stream, m LoudnessMeasurement, dst string) (Stream, error) {
	return n.apply(ctx, in, n.CorrectFilter(m), dst)
}

// CorrectSinglePass applies dynamic single-pass normalization to the target.
func (n *LoudnessNormalizer) CorrectSinglePass(ctx context.Context, in Stream, dst string) (Stream, error) {
	return n.apply(ctx, in, n.SinglePassFilter(), dst)
}

func (n *LoudnessNormalizer) apply(ctx context.Context, in Stream, chain FilterChain, dst string) (Stream, error) {
	f := Format{SampleRate: in.Format.SampleRate, Channels: 1, SampleFormat: PCMF32}
	if _, err := n.runner.Run(ctx, Request{Input: in.Path, Output: dst, Filter: chain, Format: &f}); err != nil {
		return Stream{}, stageErr(StageNormalize, ErrNormalization, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return Stream{}, stageErr(StageNormalize, ErrNormalization, fmt.Errorf("no output written: %w", err))
	}
	return Stream{Path: dst, Format: f, Duration: in.Duration}, nil
}

// Finalize writes in to dst as 16 kHz mono s16 with a peak limiter.
func (n *LoudnessNormalizer) Finalize(ctx context.Context, in Stream, dst string) (Stream, error) {
	f := RecognitionFormat
	if _, err := n.runner.Run(ctx, Request{Input: in.Path, Output: dst, Filter: FinalizeFilter(), Format: &f}); err != nil {
		return Stream{}, stageErr(StageFinalize, ErrFinalize, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return Stream{}, stageErr(StageFinalize, ErrFinalize, fmt.Errorf("no output written: %w", err))
	}
	return probe(Stream{Path: dst, Format: f, Duration: in.Duration}), nil
}

// NormalizeResult is the outcome of Normalize.
type NormalizeResult struct {
	Output       Stream
	Measurement  *LoudnessMeasurement
	Degradations []Degradation
}

// Outcome reports OutcomeDegraded when any fallback was taken.
func (r NormalizeResult) Outcome() Outcome {
	if len(r.Degradations) > 0 {
		return OutcomeDegraded
	}
	return OutcomeFull
}

// Normalize measures in, corrects it in ws, and finalizes into dst. A failed
// measurement or correction falls back to single-pass normalization; if that
// fails too, loudness correction is skipped. Only a finalize failure is
// returned as an error.
func (n *LoudnessNormalizer) Normalize(ctx context.Context, in Stream, ws *Workspace, dst string) (NormalizeResult, error) {
	var res NormalizeResult
	cur := in

	m, err := n.Measure(ctx, in)
	if err == nil {
		res.Measurement = &m
		out, cerr := n.Correct(ctx, in, m, ws.Path(StageNormalize))
		if cerr == nil {
			cur = out
		} else {
			res.Degradations = append(res.Degradations, n.degrade(StageNormalize, cerr, "single-pass loudnorm"))
		}
	} else {
		res.Degradations = append(res.Degradations, n.degrade(StageMeasure, err, "single-pass loudnorm"))
	}

	if len(res.Degradations) > 0 {
		out, serr := n.CorrectSinglePass(ctx, in, ws.Path(StageNormalize))
		if serr == nil {
			cur = out
		} else {
			res.Degradations = append(res.Degradations, n.degrade(StageNormalize, serr, "loudness correction skipped"))
		}
	}

	out, err := n.Finalize(ctx, cur, dst)
	if err != nil {
		return res, err
	}
	res.Output = out
	return res, nil
}

func (n *LoudnessNormalizer) degrade(stage Stage, err error, fallback string) Degradation {
	n.log.Warn().Str("stage", string(stage)).Err(err).Str("fallback", fallback).Msg("loudness stage degraded")
	return Degradation{Stage: stage, Err: err, Fallback: fallback}
}
