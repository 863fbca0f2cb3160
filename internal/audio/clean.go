package audio

import (
	"context"
	"fmt"
	"os"
)

// CleaningChain applies the speech cleaning filters in one transcoder call.
type CleaningChain struct {
	runner Runner
	chain  FilterChain
}

func NewCleaningChain(r Runner, opts CleaningOptions) *CleaningChain {
	return &CleaningChain{runner: r, chain: opts.Chain()}
}

// Filters returns the rendered chain.
func (c *CleaningChain) Filters() FilterChain { return c.chain }

// Apply filters in into dst as mono float PCM at the input rate. On failure
// the caller keeps using in; partial chains are never retried.
func (c *CleaningChain) Apply(ctx context.Context, in Stream, dst string) (Stream, error) {
	if len(c.chain) == 0 {
		return in, nil
	}
	f := Format{SampleRate: in.Format.SampleRate, Channels: 1, SampleFormat: PCMF32}
	req := Request{Input: in.Path, Output: dst, Filter: c.chain, Format: &f}
	if _, err := c.runner.Run(ctx, req); err != nil {
		return in, stageErr(StageClean, ErrCleaning, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return in, stageErr(StageClean, ErrCleaning, fmt.Errorf("no output written: %w", err))
	}
	return Stream{Path: dst, Format: f, Duration: in.Duration}, nil
}
