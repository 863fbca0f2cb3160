package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/config"
)

// AudioStore abstracts audio file storage backends.
type AudioStore interface {
	// Save stores audio data. key format: {session_id}/{filename}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// URL returns a presigned URL for the audio file.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the audio file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an audio file exists in any backend.
	Exists(ctx context.Context, key string) bool

	// RemoveSession deletes every object stored for a session.
	RemoveSession(ctx context.Context, sessionID string) error

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// Object names within a session.
const (
	uploadName = "upload"
	cleanName  = "clean.wav"
)

// UploadKey returns the key of a session's original upload. The source file
// extension is kept so ffmpeg and downloads can see the container type.
func UploadKey(sessionID, sourceName string) string {
	ext := strings.ToLower(filepath.Ext(sourceName))
	return path.Join(sessionID, uploadName+ext)
}

// CleanAudioKey returns the key of a session's cleaned recognition audio.
func CleanAudioKey(sessionID string) string {
	return path.Join(sessionID, cleanName)
}

// New creates an AudioStore based on config. Returns the store and optional
// background services (pruner, reconciler, uploader) that the caller must
// Start/Stop. Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, []BackgroundService, error) {
	if !cfg.Enabled() {
		return NewLocalStore(audioDir), nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	// Tiered mode: local primary + S3 backup
	local := NewLocalStore(audioDir)
	uploader := NewAsyncUploader(s3store, 256, cfg.UploadWorkers, log)
	tiered := NewTieredStore(s3store, local, uploader, log)

	services := []BackgroundService{uploader}

	if cfg.CacheRetention > 0 || cfg.CacheMaxGB > 0 {
		services = append(services, NewCachePruner(audioDir, cfg.CacheRetention, cfg.CacheMaxGB, s3store, log))
	}
	services = append(services, NewUploadReconciler(audioDir, s3store, log))

	return tiered, services, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// ContentTypeFromExt returns the MIME type for an audio or video file extension.
func ContentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
