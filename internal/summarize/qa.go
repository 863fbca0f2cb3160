package summarize

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// DefaultTopK is the number of transcript chunks given to the model.
const DefaultTopK = 4

// NoAnswer is returned when the transcript holds nothing relevant.
const NoAnswer = "I cannot answer the question based on the provided context."

const (
	qaSystem = "You answer questions about meeting transcripts."
	qaPrompt = `Answer the question based ONLY on the provided context.
Be concise and do not make up information. If the context does not contain the answer, say "` + NoAnswer + `"
For context, each piece of text is attributed to a speaker (e.g., SPEAKER_01) and has start/end timestamps in seconds.

<context>
%s
</context>

Question: %s`
)

// Passage is a speaker chunk prepared for retrieval.
type Passage struct {
	Content   string  `json:"content"`
	Speaker   string  `json:"speaker"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	ChunkID   int     `json:"chunk_id"`
}

// Answer is a model answer with the passages it was given.
type Answer struct {
	Answer  string    `json:"answer"`
	Context []Passage `json:"context"`
}

// Passages converts speaker chunks to retrieval passages, rounding times to
// hundredths of a second.
func Passages(chunks []transcript.SpeakerChunk) []Passage {
	out := make([]Passage, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, Passage{
			Content:   c.Text,
			Speaker:   c.Speaker,
			StartTime: round2(c.Start),
			EndTime:   round2(c.End),
			ChunkID:   i,
		})
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Retrieve ranks passages against question by TF-IDF over lowercase word
// tokens and returns up to k passages with a positive score, best first.
// Equal scores keep transcript order.
func Retrieve(question string, passages []Passage, k int) []Passage {
	terms := tokenize(question)
	if len(terms) == 0 || len(passages) == 0 || k <= 0 {
		return nil
	}

	docs := make([]map[string]int, len(passages))
	df := map[string]int{}
	for i, p := range passages {
		tf := map[string]int{}
		for _, tok := range tokenize(p.Content + " " + p.Speaker) {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		docs[i] = tf
	}

	type scored struct {
		idx   int
		score float64
	}
	n := float64(len(passages))
	var ranked []scored
	for i, tf := range docs {
		var score float64
		for _, term := range terms {
			if c := tf[term]; c > 0 {
				idf := math.Log((n+1)/float64(df[term]+1)) + 1
				score += (1 + math.Log(float64(c))) * idf
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{i, score})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Passage, len(ranked))
	for i, r := range ranked {
		out[i] = passages[r.idx]
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"did": true, "do": true, "does": true, "for": true, "from": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true, "with": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// Answerer answers questions about a transcript using retrieved passages.
type Answerer struct {
	chat ChatClient
	topK int
}

// NewAnswerer creates a question answerer.
func NewAnswerer(chat ChatClient) *Answerer {
	return &Answerer{chat: chat, topK: DefaultTopK}
}

// Answer retrieves the passages most relevant to question and asks the model
// to answer from them alone. With no relevant passages the model is not
// called and NoAnswer is returned.
func (a *Answerer) Answer(ctx context.Context, question string, chunks []transcript.SpeakerChunk) (Answer, error) {
	found := Retrieve(question, Passages(chunks), a.topK)
	if len(found) == 0 {
		return Answer{Answer: NoAnswer, Context: []Passage{}}, nil
	}

	var b strings.Builder
	for _, p := range found {
		fmt.Fprintf(&b, "[%s %.2f-%.2fs] %s\n", p.Speaker, p.StartTime, p.EndTime, p.Content)
	}
	answer, err := a.chat.Complete(ctx, qaSystem, fmt.Sprintf(qaPrompt, strings.TrimRight(b.String(), "\n"), question))
	if err != nil {
		return Answer{}, err
	}
	return Answer{Answer: answer, Context: found}, nil
}
