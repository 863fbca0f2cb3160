package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// NoiseOptions configures spectral gating.
type NoiseOptions struct {
	// PropDecrease is the fraction of gated energy removed, in [0,1].
	PropDecrease float64
	NFFT         int
	WinLength    int
	HopLength    int
	// Stationary gates against the noise profile alone. Otherwise the
	// profile is combined with a running estimate of the signal floor.
	Stationary bool
	// NStdThresh is how many standard deviations above the profile mean a
	// bin must be to count as signal.
	NStdThresh float64
	// TimeConstant is the smoothing horizon of the running floor.
	TimeConstant time.Duration
}

// DefaultNoiseOptions returns the speech defaults.
func DefaultNoiseOptions() NoiseOptions {
	return NoiseOptions{
		PropDecrease: 0.8,
		NFFT:         2048,
		WinLength:    2048,
		HopLength:    512,
		Stationary:   false,
		NStdThresh:   1.5,
		TimeConstant: 2 * time.Second,
	}
}

func (o NoiseOptions) validate() error {
	switch {
	case o.PropDecrease < 0 || o.PropDecrease > 1:
		return fmt.Errorf("prop decrease %v outside [0,1]", o.PropDecrease)
	case o.WinLength <= 0 || o.HopLength <= 0:
		return fmt.Errorf("window %d and hop %d must be positive", o.WinLength, o.HopLength)
	case o.HopLength > o.WinLength:
		return fmt.Errorf("hop %d exceeds window %d", o.HopLength, o.WinLength)
	case o.NFFT < o.WinLength:
		return fmt.Errorf("fft size %d smaller than window %d", o.NFFT, o.WinLength)
	}
	return nil
}

// nonstationaryRatio is how far above the running floor a bin must rise to
// count as signal in non-stationary mode.
const nonstationaryRatio = 2.0

const minMagnitude = 1e-10

var errTooShort = errors.New("signal too short for noise profile")

// noiseProfileLen is the number of leading samples the noise profile is
// estimated from: one second, or the first tenth of shorter signals.
func noiseProfileLen(sampleRate, n int) int {
	return min(sampleRate, n/10)
}

// ReduceNoise applies spectral gating to mono samples in [-1,1]. The noise
// profile is estimated from the leading min(sampleRate, len/10) samples.
func ReduceNoise(ctx context.Context, samples []float64, sampleRate int, opts NoiseOptions) ([]float64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	noiseLen := noiseProfileLen(sampleRate, len(samples))
	if noiseLen < 1 {
		return nil, errTooShort
	}

	st := newSTFT(opts)
	thresh, floor := noiseProfile(st, samples[:noiseLen], opts.NStdThresh)

	alpha := 1.0
	if tc := opts.TimeConstant.Seconds(); tc > 0 {
		alpha = 1 - math.Exp(-float64(opts.HopLength)/(float64(sampleRate)*tc))
	}
	running := make([]float64, st.bins)
	copy(running, floor)

	out := make([]float64, len(samples))
	wsum := make([]float64, len(samples))

	frames := [3]*gateFrame{newGateFrame(st.bins), newGateFrame(st.bins), newGateFrame(st.bins)}
	var prev, cur *gateFrame
	n := 0
	for start := -opts.WinLength / 2; start < len(samples); start += opts.HopLength {
		if n%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		next := frames[n%3]
		n++
		next.start = start
		next.coeff = st.forward(samples, start, next.coeff)
		for k, c := range next.coeff {
			mag := math.Max(cmplx.Abs(c), minMagnitude)
			signal := 20*math.Log10(mag) > thresh[k]
			if !opts.Stationary {
				running[k] = (1-alpha)*running[k] + alpha*mag
				signal = signal && mag > nonstationaryRatio*running[k]
			}
			next.mask[k] = 0
			if signal {
				next.mask[k] = 1
			}
		}
		if cur != nil {
			st.emit(prev, cur, next, opts.PropDecrease, out, wsum)
		}
		prev, cur = cur, next
	}
	if cur != nil {
		st.emit(prev, cur, nil, opts.PropDecrease, out, wsum)
	}

	for i := range out {
		if wsum[i] > minMagnitude {
			out[i] /= wsum[i]
		}
	}
	return out, nil
}

// noiseProfile returns the per-bin dB threshold and mean linear magnitude of
// the noise clip.
func noiseProfile(st *stft, noise []float64, nStd float64) (thresh, floor []float64) {
	sum := make([]float64, st.bins)
	sumSq := make([]float64, st.bins)
	var coeff []complex128
	frames := 0
	for start := -st.win / 2; start < len(noise); start += st.hop {
		coeff = st.forward(noise, start, coeff)
		for k, c := range coeff {
			db := 20 * math.Log10(math.Max(cmplx.Abs(c), minMagnitude))
			sum[k] += db
			sumSq[k] += db * db
		}
		frames++
	}

	thresh = make([]float64, st.bins)
	floor = make([]float64, st.bins)
	nf := float64(frames)
	for k := range sum {
		mean := sum[k] / nf
		variance := math.Max(sumSq[k]/nf-mean*mean, 0)
		thresh[k] = mean + nStd*math.Sqrt(variance)
		floor[k] = math.Pow(10, mean/20)
	}
	return thresh, floor
}

type gateFrame struct {
	start int
	coeff []complex128
	mask  []float64
}

func newGateFrame(bins int) *gateFrame {
	return &gateFrame{coeff: make([]complex128, bins), mask: make([]float64, bins)}
}

type stft struct {
	fft    *fourier.FFT
	window []float64
	nfft   int
	win    int
	hop    int
	bins   int
	frame  []float64
	seq    []float64
}

func newSTFT(o NoiseOptions) *stft {
	w := make([]float64, o.WinLength)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(o.WinLength))
	}
	return &stft{
		fft:    fourier.NewFFT(o.NFFT),
		window: w,
		nfft:   o.NFFT,
		win:    o.WinLength,
		hop:    o.HopLength,
		bins:   o.NFFT/2 + 1,
		frame:  make([]float64, o.NFFT),
		seq:    make([]float64, o.NFFT),
	}
}

// forward returns the spectrum of the windowed frame of x beginning at start.
// Samples outside x are zero.
func (s *stft) forward(x []float64, start int, dst []complex128) []complex128 {
	for i := range s.frame {
		s.frame[i] = 0
	}
	for i := 0; i < s.win; i++ {
		if j := start + i; j >= 0 && j < len(x) {
			s.frame[i] = x[j] * s.window[i]
		}
	}
	if len(dst) != s.bins {
		dst = nil
	}
	return s.fft.Coefficients(dst, s.frame)
}

// emit gates cur with a mask averaged over neighbouring frames and bins, then
// overlap-adds the windowed inverse into out.
func (s *stft) emit(prev, cur, next *gateFrame, prop float64, out, wsum []float64) {
	rows := make([][]float64, 0, 3)
	for _, f := range []*gateFrame{prev, cur, next} {
		if f != nil {
			rows = append(rows, f.mask)
		}
	}
	for k := range cur.coeff {
		var total, count float64
		for _, row := range rows {
			for b := max(k-1, 0); b <= min(k+1, s.bins-1); b++ {
				total += row[b]
				count++
			}
		}
		gain := 1 - prop*(1-total/count)
		cur.coeff[k] *= complex(gain, 0)
	}

	seq := s.fft.Sequence(s.seq, cur.coeff)
	scale := 1 / float64(s.nfft)
	for i := 0; i < s.win; i++ {
		if j := cur.start + i; j >= 0 && j < len(out) {
			out[j] += seq[i] * scale * s.window[i]
			wsum[j] += s.window[i] * s.window[i]
		}
	}
}
