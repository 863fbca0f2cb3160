package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/config"
	"github.com/kushiiitd05/IntelliScript/internal/database"
	"github.com/kushiiitd05/IntelliScript/internal/progress"
	"github.com/kushiiitd05/IntelliScript/internal/sessions"
	"github.com/kushiiitd05/IntelliScript/internal/summarize"
	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

type fakeSessionStore struct {
	sessions map[string]*database.Session
	docs     map[string]*transcript.Document
	err      error
	speaker  string
}

func (f *fakeSessionStore) GetSession(_ context.Context, id string) (*database.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) ListSessions(_ context.Context, limit, offset int) ([]database.Session, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := []database.Session{}
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeSessionStore) GetDocument(_ context.Context, id string) (*transcript.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return d, nil
}

func (f *fakeSessionStore) ListChunks(_ context.Context, id, speaker string) ([]transcript.SpeakerChunk, error) {
	f.speaker = speaker
	d, ok := f.docs[id]
	if !ok {
		return []transcript.SpeakerChunk{}, nil
	}
	out := []transcript.SpeakerChunk{}
	for _, c := range d.Chunks {
		if speaker == "" || c.Speaker == speaker {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) DeleteSession(_ context.Context, id string) error {
	if _, ok := f.sessions[id]; !ok {
		return database.ErrNotFound
	}
	delete(f.sessions, id)
	delete(f.docs, id)
	return nil
}

type fakeSubmitter struct {
	got     sessions.Submission
	body    string
	receipt sessions.Receipt
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, sub sessions.Submission) (sessions.Receipt, error) {
	f.got = sub
	b, _ := io.ReadAll(sub.Body)
	f.body = string(b)
	if f.err != nil {
		return sessions.Receipt{}, f.err
	}
	return f.receipt, nil
}

type fakeProgress struct{}

func (fakeProgress) Get(_ context.Context, id string) progress.Progress {
	return progress.Progress{SessionID: id, Message: "Transcribing", Progress: 30, Stage: "transcribe", Status: progress.StatusProcessing}
}

type fakeAnswerer struct {
	question string
	chunks   int
	err      error
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, chunks []transcript.SpeakerChunk) (summarize.Answer, error) {
	f.question = q
	f.chunks = len(chunks)
	if f.err != nil {
		return summarize.Answer{}, f.err
	}
	return summarize.Answer{Answer: "They discussed the budget.", Context: []summarize.Passage{}}, nil
}

type fakeDocCache struct {
	doc    *transcript.Document
	forgot *string
}

func (f fakeDocCache) GetDocument(_ context.Context, id string) *transcript.Document {
	if f.doc != nil && f.doc.SessionID == id {
		return f.doc
	}
	return nil
}

func (f fakeDocCache) Forget(_ context.Context, id string) {
	if f.forgot != nil {
		*f.forgot = id
	}
}

func testDocument() *transcript.Document {
	return &transcript.Document{
		SessionID: "done",
		Source:    "meeting.mp3",
		Duration:  4,
		Text:      "hello there general kenobi",
		Words:     []transcript.Word{},
		Chunks: []transcript.SpeakerChunk{
			{Speaker: "SPEAKER_00", Text: "hello there", Start: 0, End: 1.5},
			{Speaker: "SPEAKER_01", Text: "general kenobi", Start: 2, End: 3.5},
		},
		Summary:      "A greeting.",
		AudioOutcome: "clean",
		CreatedAt:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func newTestStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*database.Session{
			"done":    {ID: "done", Source: "meeting.mp3", Status: database.StatusCompleted, ChunkCount: 2},
			"running": {ID: "running", Source: "call.wav", Status: database.StatusProcessing},
			"broken":  {ID: "broken", Source: "x.mp4", Status: database.StatusError, Error: "audio extract failed: no audio stream"},
		},
		docs: map[string]*transcript.Document{"done": testDocument()},
	}
}

type testEnv struct {
	handler   http.Handler
	store     *fakeSessionStore
	submitter *fakeSubmitter
	answerer  *fakeAnswerer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     newTestStore(),
		submitter: &fakeSubmitter{receipt: sessions.Receipt{SessionID: "new-id", Status: "queued"}},
		answerer:  &fakeAnswerer{},
	}
	cfg := &config.Config{MaxUploadMB: 1, RateLimitRPS: 1000, RateLimitBurst: 1000}
	deps := Deps{
		DB:          PingerFunc(func(context.Context) error { return nil }),
		Sessions:    env.store,
		Submitter:   env.submitter,
		Progress:    fakeProgress{},
		Answerer:    env.answerer,
		OpenAPISpec: []byte("openapi: 3.0.3\n"),
	}
	env.handler = NewRouter(cfg, deps, "test", time.Now(), zerolog.Nop())
	return env
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func buildMultipartForm(t *testing.T, fields map[string]string, fileField string, fileData []byte, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if fileData != nil && fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
}

func TestUpload(t *testing.T) {
	t.Run("queues_session", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := buildMultipartForm(t, map[string]string{
			"language":     "en",
			"num_speakers": "2",
		}, "file", []byte("ID3-audio"), "meeting.mp3")

		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		var receipt sessions.Receipt
		decodeBody(t, rec, &receipt)
		if receipt.SessionID != "new-id" {
			t.Errorf("session_id = %q, want new-id", receipt.SessionID)
		}
		got := env.submitter.got
		if got.Source != "meeting.mp3" || got.Language != "en" || got.NumSpeakers != 2 {
			t.Errorf("unexpected submission: %+v", got)
		}
		if env.submitter.body != "ID3-audio" {
			t.Errorf("body = %q, want ID3-audio", env.submitter.body)
		}
	})

	t.Run("cached_returns_200", func(t *testing.T) {
		env := newTestEnv(t)
		env.submitter.receipt = sessions.Receipt{SessionID: "done", Status: "completed", Cached: true}
		body, ct := buildMultipartForm(t, nil, "file", []byte("x"), "a.wav")
		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := buildMultipartForm(t, map[string]string{"language": "en"}, "", nil, "")
		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid_speaker_count", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := buildMultipartForm(t, map[string]string{"num_speakers": "two"}, "file", []byte("x"), "a.wav")
		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("min_above_max", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := buildMultipartForm(t, map[string]string{"min_speakers": "4", "max_speakers": "2"}, "file", []byte("x"), "a.wav")
		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("too_large", func(t *testing.T) {
		env := newTestEnv(t)
		big := bytes.Repeat([]byte("a"), 2<<20)
		body, ct := buildMultipartForm(t, nil, "file", big, "big.wav")
		rec := env.do("POST", "/api/v1/upload", body, ct)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d", rec.Code)
		}
	})

	errCases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"unsupported_media", sessions.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, ErrUnsupportedMedia},
		{"empty_upload", sessions.ErrEmptyUpload, http.StatusBadRequest, ErrBadRequest},
		{"queue_full", sessions.ErrQueueFull, http.StatusServiceUnavailable, ErrQueueFull},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, ErrInternal},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.submitter.err = tc.err
			body, ct := buildMultipartForm(t, nil, "file", []byte("x"), "a.wav")
			rec := env.do("POST", "/api/v1/upload", body, ct)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			var er ErrorResponse
			decodeBody(t, rec, &er)
			if er.Code != tc.code {
				t.Errorf("code = %q, want %q", er.Code, tc.code)
			}
		})
	}
}

func TestGetProgress(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/api/v1/progress/abc", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var p progress.Progress
	decodeBody(t, rec, &p)
	if p.SessionID != "abc" || p.Progress != 30 {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestGetResults(t *testing.T) {
	env := newTestEnv(t)

	t.Run("completed", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/results/done", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp ResultsResponse
		decodeBody(t, rec, &resp)
		if resp.Status != database.StatusCompleted || resp.Results == nil {
			t.Fatalf("unexpected response: %+v", resp)
		}
		if len(resp.Results.Chunks) != 2 {
			t.Errorf("chunks = %d, want 2", len(resp.Results.Chunks))
		}
	})

	t.Run("processing_has_null_results", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/results/running", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"results":null`) {
			t.Errorf("expected null results, got %s", rec.Body.String())
		}
	})

	t.Run("error_carries_message", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/results/broken", nil, "")
		var resp ResultsResponse
		decodeBody(t, rec, &resp)
		if resp.Status != database.StatusError || !strings.Contains(resp.Error, "no audio stream") {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/results/missing", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestGetResultsPrefersCache(t *testing.T) {
	store := newTestStore()
	cached := testDocument()
	cached.SessionID = "running"
	cached.Summary = "from cache"
	cfg := &config.Config{MaxUploadMB: 1, RateLimitRPS: 1000, RateLimitBurst: 1000}
	h := NewRouter(cfg, Deps{Sessions: store, Cache: fakeDocCache{doc: cached}, Progress: fakeProgress{}}, "test", time.Now(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/results/running", nil))
	var resp ResultsResponse
	decodeBody(t, rec, &resp)
	if resp.Results == nil || resp.Results.Summary != "from cache" {
		t.Errorf("expected cached document, got %+v", resp)
	}
}

func TestSessionsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/sessions?limit=10", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Sessions []database.Session `json:"sessions"`
			Total    int                `json:"total"`
			Limit    int                `json:"limit"`
		}
		decodeBody(t, rec, &body)
		if body.Total != 3 || len(body.Sessions) != 3 || body.Limit != 10 {
			t.Errorf("unexpected list: %+v", body)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/sessions/done", nil, "")
		var s database.Session
		decodeBody(t, rec, &s)
		if s.ID != "done" || s.ChunkCount != 2 {
			t.Errorf("unexpected session: %+v", s)
		}
	})

	t.Run("get_missing", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/sessions/nope", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("chunks_filtered_by_speaker", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/sessions/done/chunks?speaker=SPEAKER_01", nil, "")
		var body struct {
			Chunks []transcript.SpeakerChunk `json:"chunks"`
			Total  int                       `json:"total"`
		}
		decodeBody(t, rec, &body)
		if body.Total != 1 || body.Chunks[0].Text != "general kenobi" {
			t.Errorf("unexpected chunks: %+v", body)
		}
		if env.store.speaker != "SPEAKER_01" {
			t.Errorf("speaker filter not passed through: %q", env.store.speaker)
		}
	})

	t.Run("store_error_is_500", func(t *testing.T) {
		broken := newTestEnv(t)
		broken.store.err = errors.New("connection refused")
		rec := broken.do("GET", "/api/v1/sessions", nil, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestAsk(t *testing.T) {
	t.Run("answers_from_chunks", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do("POST", "/api/v1/ask", strings.NewReader(`{"session_id":"done","question":" what was said? "}`), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var ans summarize.Answer
		decodeBody(t, rec, &ans)
		if ans.Answer == "" {
			t.Error("empty answer")
		}
		if env.answerer.question != "what was said?" || env.answerer.chunks != 2 {
			t.Errorf("answerer got question %q with %d chunks", env.answerer.question, env.answerer.chunks)
		}
	})

	t.Run("missing_fields", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do("POST", "/api/v1/ask", strings.NewReader(`{"session_id":"done"}`), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed_json", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do("POST", "/api/v1/ask", strings.NewReader(`{bad`), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("session_not_ready", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do("POST", "/api/v1/ask", strings.NewReader(`{"session_id":"running","question":"why?"}`), "application/json")
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("llm_failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.answerer.err = errors.New("HTTP 500")
		rec := env.do("POST", "/api/v1/ask", strings.NewReader(`{"session_id":"done","question":"why?"}`), "application/json")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("not_configured", func(t *testing.T) {
		cfg := &config.Config{MaxUploadMB: 1, RateLimitRPS: 1000, RateLimitBurst: 1000}
		h := NewRouter(cfg, Deps{Sessions: newTestStore()}, "test", time.Now(), zerolog.Nop())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{}`)))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	t.Run("srt_download", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/export/done/srt", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "subtitles.srt") {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if !strings.Contains(rec.Body.String(), "00:00:00,000 --> 00:00:01,500") {
			t.Errorf("unexpected srt body: %s", rec.Body.String())
		}
	})

	t.Run("zip_bundle", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/export/done/zip", nil, "")
		zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
		if err != nil {
			t.Fatalf("invalid zip: %v", err)
		}
		if len(zr.File) != 5 {
			t.Errorf("zip has %d files, want 5", len(zr.File))
		}
	})

	t.Run("unsupported_format", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/export/done/docx", nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not_ready", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/export/running/txt", nil, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("unknown_session", func(t *testing.T) {
		rec := env.do("GET", "/api/v1/export/missing/txt", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestOpenAPISpecServed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/api/v1/openapi.yaml", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "openapi:") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestAuthProtectsSessionRoutes(t *testing.T) {
	cfg := &config.Config{MaxUploadMB: 1, RateLimitRPS: 1000, RateLimitBurst: 1000, AuthToken: "secret"}
	deps := Deps{
		DB:       PingerFunc(func(context.Context) error { return nil }),
		Sessions: newTestStore(),
		Progress: fakeProgress{},
	}
	h := NewRouter(cfg, deps, "test", time.Now(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("sessions without token: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health without token: expected 200, got %d", rec.Code)
	}
}

type fakeAudio struct{ removed []string }

func (f *fakeAudio) RemoveSession(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore()
	audio := &fakeAudio{}
	var forgot string
	cfg := &config.Config{MaxUploadMB: 1, RateLimitRPS: 1000, RateLimitBurst: 1000, AuthToken: "secret"}
	deps := Deps{
		Sessions: store,
		Progress: fakeProgress{},
		Cache:    fakeDocCache{forgot: &forgot},
		Audio:    audio,
	}
	h := NewRouter(cfg, deps, "test", time.Now(), zerolog.Nop())

	del := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("DELETE", "/api/v1/sessions/"+id, nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("completed_session_removed", func(t *testing.T) {
		rec := del("done")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
		}
		if _, ok := store.sessions["done"]; ok {
			t.Error("session still stored")
		}
		if forgot != "done" {
			t.Errorf("cache not cleared, forgot %q", forgot)
		}
		if len(audio.removed) != 1 || audio.removed[0] != "done" {
			t.Errorf("audio removed = %v", audio.removed)
		}
	})

	t.Run("processing_session_conflict", func(t *testing.T) {
		rec := del("running")
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
		if _, ok := store.sessions["running"]; !ok {
			t.Error("running session should be kept")
		}
	})

	t.Run("unknown_session", func(t *testing.T) {
		if rec := del("missing"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("failed_session_removed", func(t *testing.T) {
		if rec := del("broken"); rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestDeleteSessionRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("DELETE", "/api/v1/sessions/done", nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without configured token, got %d", rec.Code)
	}
	if _, ok := env.store.sessions["done"]; !ok {
		t.Error("session should not be deleted")
	}
}
