// Package diarize answers "who spoke when" for a cleaned recording.
package diarize

import (
	"context"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// Options constrain the number of speakers. Zero values leave the choice to
// the backend.
type Options struct {
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
	Language    string
}

// Provider is a speaker diarization backend.
type Provider interface {
	Diarize(ctx context.Context, audioPath string, opts Options) ([]transcript.SpeakerTurn, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}
