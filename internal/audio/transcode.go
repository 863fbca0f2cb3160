package audio

import (
	"context"
	"fmt"
	"os"
)

// Transcoder decodes any media container into a PCM audio stream.
type Transcoder struct {
	runner Runner
}

func NewTranscoder(r Runner) *Transcoder {
	return &Transcoder{runner: r}
}

// Extract decodes the audio track of src into dst in format f. Any failure is
// an ErrExtraction StageError.
func (t *Transcoder) Extract(ctx context.Context, src, dst string, f Format) (Stream, error) {
	if _, err := os.Stat(src); err != nil {
		return Stream{}, stageErr(StageExtract, ErrExtraction, err)
	}
	req := Request{Input: src, Output: dst, Format: &f}
	if _, err := t.runner.Run(ctx, req); err != nil {
		return Stream{}, stageErr(StageExtract, ErrExtraction, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return Stream{}, stageErr(StageExtract, ErrExtraction, fmt.Errorf("no output written: %w", err))
	}
	return probe(Stream{Path: dst, Format: f}), nil
}
