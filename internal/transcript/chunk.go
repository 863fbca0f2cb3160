package transcript

import (
	"strings"
	"time"
)

// DefaultGapThreshold is the silence between two words of the same speaker
// that still keeps them in one chunk.
const DefaultGapThreshold = 300 * time.Millisecond

// Options controls chunking.
type Options struct {
	// GapThreshold splits a chunk when the next word starts more than this
	// long after the previous word ended. Zero means DefaultGapThreshold; a
	// negative value splits on every positive gap.
	GapThreshold time.Duration
}

func (o Options) gap() float64 {
	switch {
	case o.GapThreshold == 0:
		return DefaultGapThreshold.Seconds()
	case o.GapThreshold < 0:
		return 0
	}
	return o.GapThreshold.Seconds()
}

// Chunk groups aligned words, in order, into speaker chunks. A new chunk starts
// whenever the speaker changes or the gap to the previous word exceeds the
// threshold. Word text is concatenated verbatim and trimmed once per chunk.
func Chunk(words []AlignedWord, opts Options) []SpeakerChunk {
	chunks := []SpeakerChunk{}
	if len(words) == 0 {
		return chunks
	}
	gap := opts.gap()

	var (
		text strings.Builder
		cur  SpeakerChunk
		prev AlignedWord
	)
	flush := func() {
		cur.Text = strings.TrimSpace(text.String())
		chunks = append(chunks, cur)
		text.Reset()
	}

	for i, w := range words {
		if i == 0 {
			cur = SpeakerChunk{Speaker: w.Speaker, Start: w.Start}
		} else if w.Speaker != prev.Speaker || w.Start-prev.End > gap {
			flush()
			cur = SpeakerChunk{Speaker: w.Speaker, Start: w.Start}
		}
		text.WriteString(w.Text)
		cur.End = w.End
		prev = w
	}
	flush()
	return chunks
}

// Merge aligns words to speaker turns and groups them into chunks.
func Merge(words []Word, turns []SpeakerTurn, opts Options) []SpeakerChunk {
	return Chunk(Align(words, turns), opts)
}
