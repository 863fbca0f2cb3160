package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clean.wav")
	if err := os.WriteFile(path, []byte("RIFF-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// capture records the multipart request a test server received.
type capture struct {
	auth   string
	fields map[string]string
	file   string
	field  string
}

func newServer(t *testing.T, status int, body string, got *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.auth = r.Header.Get("Authorization")
		got.fields = map[string]string{}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(p)
			if p.FileName() != "" {
				got.field = p.FormName()
				got.file = string(data)
				continue
			}
			got.fields[p.FormName()] = string(data)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWhisperTranscribe(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusOK, `{
		"text": "Hello, world.",
		"language": "en",
		"duration": 1.5,
		"words": [
			{"word": "Hello", "start": 0.0, "end": 0.4},
			{"word": ",", "start": 0.4, "end": 0.45},
			{"word": "world.", "start": 0.5, "end": 1.0}
		]
	}`, &got)

	wc := NewWhisperClient(srv.URL, "whisper-1", "key", 5*time.Second)
	resp, err := wc.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{Language: "en", BeamSize: 5})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got.field != "file" || got.file != "RIFF-audio" {
		t.Errorf("file part = %q %q", got.field, got.file)
	}
	if got.auth != "Bearer key" {
		t.Errorf("auth = %q", got.auth)
	}
	for k, want := range map[string]string{
		"model":                     "whisper-1",
		"language":                  "en",
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "word",
		"beam_size":                 "5",
	} {
		if got.fields[k] != want {
			t.Errorf("field %s = %q, want %q", k, got.fields[k], want)
		}
	}
	if _, ok := got.fields["prompt"]; ok {
		t.Error("empty prompt should not be sent")
	}

	if resp.Language != "en" || resp.Duration != 1.5 {
		t.Errorf("resp = %+v", resp)
	}
	var text strings.Builder
	for _, w := range resp.Words {
		text.WriteString(w.Text)
	}
	if text.String() != "Hello, world." {
		t.Errorf("concatenated words = %q", text.String())
	}
}

func TestWhisperSegmentFallback(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusOK, `{
		"text": "one two",
		"segments": [{"text": " one two", "start": 1.0, "end": 2.0}]
	}`, &got)

	resp, err := NewWhisperClient(srv.URL, "", "", time.Second).Transcribe(context.Background(), writeAudio(t), TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.auth != "" {
		t.Errorf("no API key should send no auth header, got %q", got.auth)
	}
	if len(resp.Words) != 2 {
		t.Fatalf("words = %+v", resp.Words)
	}
	if resp.Words[0].Start != 1.0 || resp.Words[0].End != 1.5 || resp.Words[1].Text != " two" {
		t.Errorf("words = %+v", resp.Words)
	}
}

func TestDeepInfraTranscribe(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusOK, `{
		"text": "hi there",
		"language": "en",
		"words": [{"text": "hi", "start": 0, "end": 0.3}, {"text": "there", "start": 0.4, "end": 0.8}]
	}`, &got)

	di := NewDeepInfraClient(srv.URL, "tok", "openai/whisper-large-v3-turbo", time.Second)
	resp, err := di.Transcribe(context.Background(), writeAudio(t), TranscribeOpts{Prompt: "names: Ada"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.field != "audio" {
		t.Errorf("file field = %q, want audio", got.field)
	}
	if got.fields["initial_prompt"] != "names: Ada" {
		t.Errorf("fields = %v", got.fields)
	}
	if got.auth != "Bearer tok" {
		t.Errorf("auth = %q", got.auth)
	}
	if len(resp.Words) != 2 || resp.Words[1].Text != " there" {
		t.Errorf("words = %+v", resp.Words)
	}
}

func TestTranscribeErrors(t *testing.T) {
	var got capture
	srv := newServer(t, http.StatusUnauthorized, `{"error":"bad key"}`, &got)

	_, err := NewDeepInfraClient(srv.URL, "tok", "m", time.Second).Transcribe(context.Background(), writeAudio(t), TranscribeOpts{})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected status error, got %v", err)
	}

	_, err = NewWhisperClient(srv.URL, "", "", time.Second).Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), TranscribeOpts{})
	if err == nil || !strings.Contains(err.Error(), "open audio file") {
		t.Errorf("expected open error, got %v", err)
	}
}

func TestWordsFromSegments(t *testing.T) {
	words := wordsFromSegments([]segment{
		{Text: "  ", Start: 0, End: 1},
		{Text: "a b c d", Start: 2, End: 4},
	})
	if len(words) != 4 {
		t.Fatalf("words = %+v", words)
	}
	if words[0].Start != 2 || words[3].End != 4 || words[1].Start != 2.5 {
		t.Errorf("words = %+v", words)
	}
}

func TestSpaceWords(t *testing.T) {
	tests := []struct {
		name     string
		language string
		in       []string
		want     string
	}{
		{"english", "en", []string{"Hello", ",", "world", "."}, "Hello, world."},
		{"already_spaced", "english", []string{"Hello", " world"}, "Hello world"},
		{"chinese_code", "zh", []string{"你好", "世界"}, "你好世界"},
		{"japanese_name", "Japanese", []string{"今日は", "晴れ", "です"}, "今日は晴れです"},
		{"thai", "th", []string{"สวัสดี", "ครับ"}, "สวัสดีครับ"},
		{"han_without_language", "", []string{"会议", "开始"}, "会议开始"},
		{"latin_between_han", "", []string{"我们", "用", "Go"}, "我们用Go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words := make([]transcript.Word, len(tt.in))
			for i, w := range tt.in {
				words[i] = transcript.Word{Text: w, Start: float64(i), End: float64(i) + 0.5}
			}
			var got strings.Builder
			for _, w := range spaceWords(words, tt.language) {
				got.WriteString(w.Text)
			}
			if got.String() != tt.want {
				t.Errorf("joined = %q, want %q", got.String(), tt.want)
			}
		})
	}
}
