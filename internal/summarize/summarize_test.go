package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

type fakeChat struct {
	mu      sync.Mutex
	prompts []string
	reply   func(system, prompt string) (string, error)
}

func (f *fakeChat) Complete(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(system, prompt)
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestSplitWords(t *testing.T) {
	assert.Nil(t, SplitWords("   ", 10, 2))
	assert.Equal(t, []string{"a b c"}, SplitWords("a  b\nc", 10, 2))

	chunks := SplitWords("1 2 3 4 5 6 7", 3, 1)
	assert.Equal(t, []string{"1 2 3", "3 4 5", "5 6 7"}, chunks)

	// overlap >= size degrades to non-overlapping windows
	assert.Equal(t, []string{"1 2", "3"}, SplitWords("1 2 3", 2, 5))

	long := SplitWords(words(3000), DefaultChunkWords, DefaultOverlapWords)
	require.Len(t, long, 3)
	assert.Len(t, strings.Fields(long[0]), 1500)
	assert.Len(t, strings.Fields(long[2]), 3000-2*1350)
}

func TestSummarize(t *testing.T) {
	chat := &fakeChat{reply: func(system, prompt string) (string, error) {
		if system == reportSystem {
			return "REPORT", nil
		}
		return "segment summary", nil
	}}
	s := NewSummarizer(chat, zerolog.Nop())

	got, err := s.Summarize(context.Background(), words(2000))
	require.NoError(t, err)
	assert.Equal(t, "REPORT", got)
	require.Len(t, chat.prompts, 3) // 2 segments + report
	assert.Contains(t, chat.prompts[2], "segment summary\n\n---\n\nsegment summary")
}

func TestSummarizeEmpty(t *testing.T) {
	chat := &fakeChat{reply: func(string, string) (string, error) { return "x", nil }}
	got, err := NewSummarizer(chat, zerolog.Nop()).Summarize(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, chat.prompts)
}

func TestSummarizeSkipsFailedSegments(t *testing.T) {
	calls := 0
	chat := &fakeChat{reply: func(system, prompt string) (string, error) {
		if system == reportSystem {
			return "REPORT", nil
		}
		calls++
		if calls == 1 {
			return "", errors.New("rate limited")
		}
		return "second", nil
	}}
	got, err := NewSummarizer(chat, zerolog.Nop()).Summarize(context.Background(), words(2000))
	require.NoError(t, err)
	assert.Equal(t, "REPORT", got)
	assert.NotContains(t, chat.prompts[len(chat.prompts)-1], "---\n\n---")
}

func TestSummarizeAllSegmentsFail(t *testing.T) {
	chat := &fakeChat{reply: func(string, string) (string, error) { return "", errors.New("down") }}
	_, err := NewSummarizer(chat, zerolog.Nop()).Summarize(context.Background(), "hello world")
	assert.ErrorIs(t, err, ErrNoSummary)
}

func TestSummarizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &fakeChat{reply: func(string, string) (string, error) { return "x", nil }}
	_, err := NewSummarizer(chat, zerolog.Nop()).Summarize(ctx, "hello world")
	assert.ErrorIs(t, err, context.Canceled)
}

var meeting = []transcript.SpeakerChunk{
	{Speaker: "SPEAKER_00", Text: "Welcome everyone to the quarterly review.", Start: 0, End: 2.456},
	{Speaker: "SPEAKER_01", Text: "The budget for marketing was cut by ten percent.", Start: 3.1, End: 6.004},
	{Speaker: "SPEAKER_00", Text: "We will hire two engineers next quarter.", Start: 6.5, End: 9},
	{Speaker: "SPEAKER_01", Text: "Marketing wants the budget restored.", Start: 9.2, End: 11},
}

func TestPassages(t *testing.T) {
	p := Passages(meeting)
	require.Len(t, p, 4)
	assert.Equal(t, Passage{Content: meeting[0].Text, Speaker: "SPEAKER_00", StartTime: 0, EndTime: 2.46, ChunkID: 0}, p[0])
	assert.Equal(t, 6.0, p[1].EndTime)
	assert.Equal(t, 3, p[3].ChunkID)
}

func TestRetrieve(t *testing.T) {
	p := Passages(meeting)

	got := Retrieve("What happened to the marketing budget?", p, 4)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []int{1, 3}, []int{got[0].ChunkID, got[1].ChunkID})

	got = Retrieve("How many engineers will we hire?", p, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ChunkID)

	assert.Empty(t, Retrieve("the of and", p, 4))
	assert.Empty(t, Retrieve("zebra", p, 4))
	assert.Empty(t, Retrieve("budget", nil, 4))
}

func TestAnswer(t *testing.T) {
	chat := &fakeChat{reply: func(string, string) (string, error) { return "It was cut by ten percent.", nil }}
	a := NewAnswerer(chat)

	ans, err := a.Answer(context.Background(), "What about the marketing budget?", meeting)
	require.NoError(t, err)
	assert.Equal(t, "It was cut by ten percent.", ans.Answer)
	assert.NotEmpty(t, ans.Context)
	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "[SPEAKER_01 3.10-6.00s] The budget for marketing was cut by ten percent.")
	assert.Contains(t, chat.prompts[0], "Question: What about the marketing budget?")
}

func TestAnswerNoContext(t *testing.T) {
	chat := &fakeChat{reply: func(string, string) (string, error) { return "should not be called", nil }}
	ans, err := NewAnswerer(chat).Answer(context.Background(), "zebra?", meeting)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, ans.Answer)
	assert.NotNil(t, ans.Context)
	assert.Empty(t, chat.prompts)
}

func TestOpenAIChat(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		TopP        float64 `json:"top_p"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  hi there \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIChat(srv.URL+"/v1/", "secret", "llama-3", 5*time.Second)
	got, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
	assert.Equal(t, "llama-3", req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	assert.InDelta(t, 0.9, req.TopP, 1e-6)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[1].Content)
}

func TestOpenAIChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChat(srv.URL, "k", "m", time.Second).Complete(context.Background(), "s", "p")
	assert.Error(t, err)
}
