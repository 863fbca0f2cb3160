package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Default chunking for map-reduce summaries, in words.
const (
	DefaultChunkWords   = 1500
	DefaultOverlapWords = 150
)

// ErrNoSummary is returned when every segment summary failed.
var ErrNoSummary = errors.New("no segment could be summarized")

const (
	segmentSystem = "You are an expert at summarizing text."
	segmentPrompt = `This is one part of a longer meeting transcript. Provide a concise summary of THIS SPECIFIC SEGMENT. Focus on the main points, decisions, and action items mentioned.

Transcript Segment:
---
%s`

	reportSystem = "You are an expert meeting analyst creating a final report."
	reportPrompt = `You are an expert meeting analyst. You will be provided with a series of summaries from a single meeting.
Your task is to synthesize these into a single, cohesive, and well-structured final report.

The final report must have the following three sections:
1. **Overall Summary:** A brief, 2-4 sentence paragraph that captures the essence of the meeting.
2. **Main Topics Discussed:** A short list of the primary topics covered.
3. **Key Points & Action Items:** A bulleted list detailing the most important points, decisions made, and specific action items.

Here are the summaries from the meeting chunks:
---
%s
---

Generate the final, structured report.`
)

// SplitWords splits text on whitespace into windows of size words, each
// starting size-overlap words after the previous one. The last window ends
// at the final word.
func SplitWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Summarizer produces a structured meeting report by summarizing
// overlapping transcript segments and then merging the segment summaries.
type Summarizer struct {
	chat    ChatClient
	size    int
	overlap int
	log     zerolog.Logger
}

// NewSummarizer creates a map-reduce summarizer.
func NewSummarizer(chat ChatClient, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		chat:    chat,
		size:    DefaultChunkWords,
		overlap: DefaultOverlapWords,
		log:     log.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize returns the final report for text. Empty text yields an empty
// summary. Segments whose summary fails are skipped.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	chunks := SplitWords(text, s.size, s.overlap)
	if len(chunks) == 0 {
		return "", nil
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		summary, err := s.chat.Complete(ctx, segmentSystem, fmt.Sprintf(segmentPrompt, chunk))
		if err != nil {
			s.log.Warn().Err(err).Int("segment", i+1).Int("segments", len(chunks)).Msg("segment summary failed")
			continue
		}
		if summary != "" {
			summaries = append(summaries, summary)
		}
	}
	if len(summaries) == 0 {
		return "", ErrNoSummary
	}

	report, err := s.chat.Complete(ctx, reportSystem, fmt.Sprintf(reportPrompt, strings.Join(summaries, "\n\n---\n\n")))
	if err != nil {
		return "", fmt.Errorf("final report: %w", err)
	}
	s.log.Debug().Int("segments", len(chunks)).Int("summarized", len(summaries)).Msg("summary complete")
	return report, nil
}
