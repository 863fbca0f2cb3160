package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

const deepInfraBaseURL = "https://api.deepinfra.com/v1/inference/"

// DeepInfraClient calls DeepInfra's native inference API for Whisper models.
type DeepInfraClient struct {
	baseURL string
	apiKey  string
	model   string // e.g. "openai/whisper-large-v3-turbo"
	client  *http.Client
}

// deepInfraResponse uses "text" for each word where OpenAI uses "word".
type deepInfraResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Words    []segment `json:"words"`
	Segments []segment `json:"segments"`
}

// NewDeepInfraClient creates a DeepInfra inference client. An empty baseURL
// uses the public API.
func NewDeepInfraClient(baseURL, apiKey, model string, timeout time.Duration) *DeepInfraClient {
	if baseURL == "" {
		baseURL = deepInfraBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &DeepInfraClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (di *DeepInfraClient) Name() string  { return "deepinfra" }
func (di *DeepInfraClient) Model() string { return di.model }

// Transcribe posts the audio as the "audio" form field to
// <baseURL><model>.
func (di *DeepInfraClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	up := &audioUpload{provider: "deepinfra", url: di.baseURL + di.model, apiKey: di.apiKey, fileField: "audio"}
	if opts.Language != "" {
		up.field("language", opts.Language)
	}
	if opts.Prompt != "" {
		up.field("initial_prompt", opts.Prompt)
	}

	body, err := up.post(ctx, di.client, audioPath)
	if err != nil {
		return nil, err
	}

	var result deepInfraResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var words []transcript.Word
	if len(result.Words) > 0 {
		words = make([]transcript.Word, len(result.Words))
		for i, w := range result.Words {
			words[i] = transcript.Word{Text: w.Text, Start: w.Start, End: w.End}
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
