package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

// whisperResponse is the verbose_json response body.
type whisperResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Words    []whisperWord `json:"words"`
	Segments []segment     `json:"segments"`
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewWhisperClient creates a new Whisper HTTP client. apiKey may be empty for
// self-hosted servers.
func NewWhisperClient(url, model, apiKey string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (wc *WhisperClient) Name() string  { return "whisper" }
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe sends an audio file to the Whisper API and returns word-level
// timestamps. Only non-default parameters are sent, so this works with
// speaches, faster-whisper servers, or the OpenAI API. Servers that ignore
// word granularity get word timings interpolated from their segments.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	up := &audioUpload{provider: "whisper", url: wc.url, apiKey: wc.apiKey, fileField: "file"}
	if wc.model != "" {
		up.field("model", wc.model)
	}
	if opts.Language != "" {
		up.field("language", opts.Language)
	}
	up.field("temperature", strconv.FormatFloat(opts.Temperature, 'f', 2, 64))
	up.field("response_format", "verbose_json")
	up.field("timestamp_granularities[]", "word")
	if opts.Prompt != "" {
		up.field("prompt", opts.Prompt)
	}
	if opts.BeamSize > 0 {
		up.field("beam_size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VadFilter {
		up.field("vad_filter", "true")
	}

	body, err := up.post(ctx, wc.client, audioPath)
	if err != nil {
		return nil, err
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var words []transcript.Word
	if len(result.Words) > 0 {
		words = make([]transcript.Word, len(result.Words))
		for i, ww := range result.Words {
			words[i] = transcript.Word{Text: ww.Word, Start: ww.Start, End: ww.End}
		}
	} else {
		words = wordsFromSegments(result.Segments)
	}
	return &Response{
		Text:     result.Text,
		Language: result.Language,
		Duration: result.Duration,
		Words:    spaceWords(words, result.Language),
	}, nil
}
