// Package sessions accepts media for processing: it spools the upload,
// records the session, and queues it for the worker pool.
package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/database"
	"github.com/kushiiitd05/IntelliScript/internal/storage"
	"github.com/kushiiitd05/IntelliScript/internal/transcribe"
)

var (
	// ErrUnsupportedMedia is returned for files whose extension is not a
	// known audio or video container.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrEmptyUpload is returned for zero-byte uploads.
	ErrEmptyUpload = errors.New("empty upload")
	// ErrQueueFull is returned when the worker queue cannot take the session.
	ErrQueueFull = errors.New("processing queue is full")
)

// MediaExtensions lists accepted upload extensions.
var MediaExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".flac": true, ".ogg": true, ".opus": true,
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
}

// IsMedia reports whether name has an accepted media extension.
func IsMedia(name string) bool {
	return MediaExtensions[strings.ToLower(filepath.Ext(name))]
}

// Store persists session rows.
type Store interface {
	CreateSession(ctx context.Context, row database.SessionRow) error
	FindCompletedByDigest(ctx context.Context, digest string) (*database.Session, error)
	MarkFailed(ctx context.Context, id, message string) error
}

// Queue accepts jobs for background processing.
type Queue interface {
	Enqueue(j transcribe.Job) bool
}

// ProgressReporter records session progress.
type ProgressReporter interface {
	Update(ctx context.Context, sessionID string, pct int, stage, message string)
}

// Submission is one recording to process.
type Submission struct {
	Source      string // original file name
	Body        io.Reader
	Language    string
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
}

// Receipt identifies the session a submission was assigned to.
type Receipt struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Cached    bool   `json:"cached"`
}

// Service creates sessions from submitted media.
type Service struct {
	db       Store
	store    storage.AudioStore // optional; keeps the original upload
	queue    Queue
	progress ProgressReporter
	spoolDir string
	log      zerolog.Logger
}

// NewService creates a session service. Uploads are spooled under spoolDir
// until a worker has processed them.
func NewService(db Store, store storage.AudioStore, queue Queue, progress ProgressReporter, spoolDir string, log zerolog.Logger) *Service {
	return &Service{
		db:       db,
		store:    store,
		queue:    queue,
		progress: progress,
		spoolDir: spoolDir,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Submit spools the media, reuses a finished session with identical content
// when one exists, and otherwise creates and queues a new session.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if !IsMedia(sub.Source) {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, filepath.Ext(sub.Source))
	}

	id := uuid.NewString()
	spooled, digest, err := s.spool(id, sub)
	if err != nil {
		return Receipt{}, err
	}
	keep := false
	defer func() {
		if !keep {
			os.Remove(spooled)
		}
	}()

	if prev, err := s.db.FindCompletedByDigest(ctx, digest); err == nil {
		s.log.Info().Str("session_id", prev.ID).Str("source", sub.Source).Msg("identical media already processed")
		return Receipt{SessionID: prev.ID, Status: database.StatusCompleted, Cached: true}, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		s.log.Warn().Err(err).Msg("digest lookup failed")
	}

	if err := s.db.CreateSession(ctx, database.SessionRow{
		ID:            id,
		Source:        sub.Source,
		Language:      sub.Language,
		NumSpeakers:   sub.NumSpeakers,
		ContentDigest: digest,
	}); err != nil {
		return Receipt{}, err
	}

	if s.store != nil {
		if err := s.keepUpload(ctx, id, sub.Source, spooled); err != nil {
			s.log.Warn().Err(err).Str("session_id", id).Msg("failed to store upload")
		}
	}

	s.progress.Update(ctx, id, 0, "queued", "Queued for processing")
	if !s.queue.Enqueue(transcribe.Job{
		SessionID:   id,
		MediaPath:   spooled,
		Source:      sub.Source,
		Language:    sub.Language,
		NumSpeakers: sub.NumSpeakers,
		MinSpeakers: sub.MinSpeakers,
		MaxSpeakers: sub.MaxSpeakers,
		RemoveMedia: true,
	}) {
		s.progress.Update(ctx, id, -1, "error", ErrQueueFull.Error())
		if err := s.db.MarkFailed(ctx, id, ErrQueueFull.Error()); err != nil {
			s.log.Warn().Err(err).Str("session_id", id).Msg("failed to record queue rejection")
		}
		return Receipt{}, ErrQueueFull
	}
	keep = true

	s.log.Info().Str("session_id", id).Str("source", sub.Source).Msg("session queued")
	return Receipt{SessionID: id, Status: database.StatusQueued}, nil
}

// SubmitFile submits a file already on local disk.
func (s *Service) SubmitFile(ctx context.Context, path string) (Receipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return Receipt{}, err
	}
	defer f.Close()
	return s.Submit(ctx, Submission{Source: filepath.Base(path), Body: f})
}

// spool copies the body to the spool directory and returns its path and
// SHA-256 digest.
func (s *Service) spool(id string, sub Submission) (string, string, error) {
	if err := os.MkdirAll(s.spoolDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(s.spoolDir, id+strings.ToLower(filepath.Ext(sub.Source)))
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create spool file: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), sub.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = ErrEmptyUpload
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrEmptyUpload) {
			return "", "", err
		}
		return "", "", fmt.Errorf("spool upload: %w", err)
	}
	return path, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) keepUpload(ctx context.Context, id, source, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, storage.UploadKey(id, source), data, storage.ContentTypeFromExt(filepath.Ext(source)))
}
