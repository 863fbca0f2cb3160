package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

const defaultPyannoteTimeout = 5 * time.Minute

// PyannoteClient talks to a pyannote.audio HTTP sidecar.
type PyannoteClient struct {
	baseURL string
	client  *http.Client
}

// NewPyannoteClient creates a client for the sidecar at baseURL.
func NewPyannoteClient(baseURL string, timeout time.Duration) *PyannoteClient {
	if timeout <= 0 {
		timeout = defaultPyannoteTimeout
	}
	return &PyannoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PyannoteClient) Name() string { return "pyannote" }

// IsAvailable reports whether the sidecar answers its health check.
func (p *PyannoteClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Diarize uploads the audio and returns speaker turns sorted by start time.
func (p *PyannoteClient) Diarize(ctx context.Context, audioPath string, opts Options) ([]transcript.SpeakerTurn, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"num_speakers", opts.NumSpeakers},
		{"min_speakers", opts.MinSpeakers},
		{"max_speakers", opts.MaxSpeakers},
	} {
		if field.value > 0 {
			w.WriteField(field.name, strconv.Itoa(field.value))
		}
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/diarize", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("diarization error (status %d): %s", resp.StatusCode, string(body))
	}

	var result pyannoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("diarization error: %s", result.Error)
	}
	return result.turns(), nil
}

type pyannoteResponse struct {
	Segments    []pyannoteSegment `json:"segments"`
	NumSpeakers int               `json:"num_speakers"`
	Error       string            `json:"error,omitempty"`
}

type pyannoteSegment struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

func (r *pyannoteResponse) turns() []transcript.SpeakerTurn {
	turns := make([]transcript.SpeakerTurn, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if seg.EndTime < seg.StartTime {
			continue
		}
		turns = append(turns, transcript.SpeakerTurn{
			Start:   seg.StartTime,
			End:     seg.EndTime,
			Speaker: seg.SpeakerID,
		})
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })
	return turns
}
