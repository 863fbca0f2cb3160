package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// SampleFormat is an ffmpeg PCM codec name.
type SampleFormat string

const (
	PCMS16 SampleFormat = "pcm_s16le"
	PCMS32 SampleFormat = "pcm_s32le"
	PCMF32 SampleFormat = "pcm_f32le"
)

// Format describes the PCM layout of a stream. A zero SampleRate keeps the
// source rate.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

func (f Format) String() string {
	rate := "source"
	if f.SampleRate > 0 {
		rate = fmt.Sprintf("%dHz", f.SampleRate)
	}
	return fmt.Sprintf("%s/%dch/%s", rate, f.Channels, f.SampleFormat)
}

var (
	// RecognitionFormat is what speech recognition consumes: 16 kHz mono s16.
	RecognitionFormat = Format{SampleRate: 16000, Channels: 1, SampleFormat: PCMS16}
	// CleaningFormat is the float intermediate used between filter stages.
	CleaningFormat = Format{Channels: 1, SampleFormat: PCMF32}
	// EnhancedFormat is the float intermediate of the enhanced pipeline.
	EnhancedFormat = Format{SampleRate: 44100, Channels: 1, SampleFormat: PCMF32}
	// denoiseFormat is the integer layout the noise reducer decodes. The WAV
	// decoder reads integer PCM only, so the float intermediate goes through s32.
	denoiseFormat = Format{Channels: 1, SampleFormat: PCMS32}
)

// Stream is an audio file produced by a pipeline stage.
type Stream struct {
	Path     string
	Format   Format
	Duration time.Duration
}

// probe fills in the sample rate and duration of a WAV stream when the header
// is readable. Failures leave the stream unchanged.
func probe(s Stream) Stream {
	f, err := os.Open(s.Path)
	if err != nil {
		return s
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return s
	}
	if s.Format.SampleRate == 0 {
		s.Format.SampleRate = int(d.SampleRate)
	}
	if dur, err := d.Duration(); err == nil {
		s.Duration = dur
	}
	return s
}
