package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/database"
	"github.com/kushiiitd05/IntelliScript/internal/export"
	"github.com/kushiiitd05/IntelliScript/internal/progress"
	"github.com/kushiiitd05/IntelliScript/internal/sessions"
	"github.com/kushiiitd05/IntelliScript/internal/summarize"
	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// SessionStore reads persisted sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*database.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]database.Session, int, error)
	GetDocument(ctx context.Context, id string) (*transcript.Document, error)
	ListChunks(ctx context.Context, sessionID, speaker string) ([]transcript.SpeakerChunk, error)
	DeleteSession(ctx context.Context, id string) error
}

// Submitter accepts uploaded media as a new session.
type Submitter interface {
	Submit(ctx context.Context, sub sessions.Submission) (sessions.Receipt, error)
}

// ProgressSource reports pipeline progress for a session.
type ProgressSource interface {
	Get(ctx context.Context, sessionID string) progress.Progress
}

// DocumentCache is a read-through cache of finished transcripts.
type DocumentCache interface {
	GetDocument(ctx context.Context, sessionID string) *transcript.Document
	Forget(ctx context.Context, sessionID string)
}

// Answerer answers questions over a session's speaker chunks.
type Answerer interface {
	Answer(ctx context.Context, question string, chunks []transcript.SpeakerChunk) (summarize.Answer, error)
}

// AudioRemover deletes a session's stored audio.
type AudioRemover interface {
	RemoveSession(ctx context.Context, sessionID string) error
}

// ResultsResponse is the body of GET /results/{id}.
type ResultsResponse struct {
	Status  string               `json:"status"`
	Error   string               `json:"error,omitempty"`
	Results *transcript.Document `json:"results"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// SessionHandler serves upload, progress, results, Q&A and export endpoints.
type SessionHandler struct {
	store     SessionStore
	submitter Submitter
	progress  ProgressSource
	cache     DocumentCache
	answerer  Answerer
	audio     AudioRemover
	maxUpload int64
	log       zerolog.Logger
}

// NewSessionHandler creates the session endpoints. maxUpload is in bytes.
func NewSessionHandler(deps Deps, maxUpload int64, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		store:     deps.Sessions,
		submitter: deps.Submitter,
		progress:  deps.Progress,
		cache:     deps.Cache,
		answerer:  deps.Answerer,
		audio:     deps.Audio,
		maxUpload: maxUpload,
		log:       log.With().Str("handler", "sessions").Logger(),
	}
}

// Routes registers the session endpoints under /api/v1.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/api/v1/upload", h.Upload)
	r.Get("/api/v1/progress/{id}", h.GetProgress)
	r.Get("/api/v1/results/{id}", h.GetResults)
	r.Get("/api/v1/sessions", h.ListSessions)
	r.Get("/api/v1/sessions/{id}", h.GetSession)
	r.Get("/api/v1/sessions/{id}/chunks", h.ListChunks)
	r.Post("/api/v1/ask", h.Ask)
	r.Get("/api/v1/export/{id}/{format}", h.Export)
}

// Upload handles POST /api/v1/upload with a multipart "file" field and
// optional language, num_speakers, min_speakers and max_speakers fields.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrBadRequest,
				fmt.Sprintf("upload exceeds %d MB", h.maxUpload>>20))
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	sub := sessions.Submission{
		Source:   header.Filename,
		Body:     file,
		Language: strings.TrimSpace(r.FormValue("language")),
	}
	for name, dst := range map[string]*int{
		"num_speakers": &sub.NumSpeakers,
		"min_speakers": &sub.MinSpeakers,
		"max_speakers": &sub.MaxSpeakers,
	} {
		if *dst, err = formInt(r, name); err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
			return
		}
	}
	if sub.MinSpeakers > 0 && sub.MaxSpeakers > 0 && sub.MinSpeakers > sub.MaxSpeakers {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "min_speakers exceeds max_speakers")
		return
	}

	receipt, err := h.submitter.Submit(r.Context(), sub)
	switch {
	case errors.Is(err, sessions.ErrUnsupportedMedia):
		WriteErrorWithCode(w, http.StatusUnsupportedMediaType, ErrUnsupportedMedia, err.Error())
		return
	case errors.Is(err, sessions.ErrEmptyUpload):
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	case errors.Is(err, sessions.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Str("source", header.Filename).Msg("upload failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "upload failed")
		return
	}

	status := http.StatusAccepted
	if receipt.Cached {
		status = http.StatusOK
	}
	WriteJSON(w, status, receipt)
}

// GetProgress handles GET /api/v1/progress/{id}.
func (h *SessionHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.progress.Get(r.Context(), chi.URLParam(r, "id")))
}

// GetResults handles GET /api/v1/results/{id}. Unfinished sessions report
// their status with null results.
func (h *SessionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.loadDocument(r.Context(), id)
	if err == nil {
		WriteJSON(w, http.StatusOK, ResultsResponse{Status: database.StatusCompleted, Results: doc})
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		h.writeStoreError(w, err)
		return
	}

	s, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ResultsResponse{Status: s.Status, Error: s.Error})
}

// ListSessions handles GET /api/v1/sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	list, total, err := h.store.ListSessions(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"total":    total,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}. Sessions still queued
// or processing cannot be deleted.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if s.Status == database.StatusQueued || s.Status == database.StatusProcessing {
		WriteErrorWithCode(w, http.StatusConflict, ErrNotReady, "session is "+s.Status)
		return
	}
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	if h.cache != nil {
		h.cache.Forget(r.Context(), id)
	}
	if h.audio != nil {
		if err := h.audio.RemoveSession(r.Context(), id); err != nil {
			h.log.Warn().Err(err).Str("session_id", id).Msg("failed to remove session audio")
		}
	}
	h.log.Info().Str("session_id", id).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ListChunks handles GET /api/v1/sessions/{id}/chunks?speaker=.
func (h *SessionHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	speaker, _ := QueryString(r, "speaker")
	chunks, err := h.store.ListChunks(r.Context(), id, speaker)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"chunks":     chunks,
		"total":      len(chunks),
	})
}

// Ask handles POST /api/v1/ask.
func (h *SessionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if h.answerer == nil {
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrUnavailable, "question answering is not configured")
		return
	}
	var req AskRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid JSON body: "+err.Error())
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.SessionID == "" || req.Question == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "session_id and question are required")
		return
	}

	doc, err := h.loadDocument(r.Context(), req.SessionID)
	if err != nil {
		h.writeNotReady(r.Context(), w, req.SessionID, err)
		return
	}

	ans, err := h.answerer.Answer(r.Context(), req.Question, doc.Chunks)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("question answering failed")
		WriteErrorWithCode(w, http.StatusBadGateway, ErrUnavailable, "question answering failed")
		return
	}
	WriteJSON(w, http.StatusOK, ans)
}

// Export handles GET /api/v1/export/{id}/{format} as a file download.
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrUnsupportedFormat, err.Error())
		return
	}

	doc, err := h.loadDocument(r.Context(), id)
	if err != nil {
		h.writeNotReady(r.Context(), w, id, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Render(&buf, doc, format); err != nil {
		h.log.Error().Err(err).Str("session_id", id).Str("format", string(format)).Msg("export failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "export failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// loadDocument reads a finished transcript from the cache, then the database.
func (h *SessionHandler) loadDocument(ctx context.Context, id string) (*transcript.Document, error) {
	if h.cache != nil {
		if doc := h.cache.GetDocument(ctx, id); doc != nil {
			return doc, nil
		}
	}
	return h.store.GetDocument(ctx, id)
}

// writeNotReady distinguishes unknown sessions from ones still in flight.
func (h *SessionHandler) writeNotReady(ctx context.Context, w http.ResponseWriter, id string, err error) {
	if !errors.Is(err, database.ErrNotFound) {
		h.writeStoreError(w, err)
		return
	}
	s, err := h.store.GetSession(ctx, id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteErrorWithCode(w, http.StatusConflict, ErrNotReady, "session is "+s.Status)
}

func (h *SessionHandler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "session not found")
		return
	}
	h.log.Error().Err(err).Msg("session query failed")
	WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "internal error")
}
