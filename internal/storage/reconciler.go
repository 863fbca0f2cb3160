package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UploadReconciler scans the local cache for session files missing from S3
// and re-uploads them. Handles dropped async uploads and crash recovery.
type UploadReconciler struct {
	cacheDir string
	s3       objectStore
	interval time.Duration
	delay    time.Duration
	window   time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// objectStore is the subset of S3Store the background services need.
type objectStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) bool
}

// NewUploadReconciler creates a reconciler that checks for missing S3 uploads.
func NewUploadReconciler(cacheDir string, s3 *S3Store, log zerolog.Logger) *UploadReconciler {
	return &UploadReconciler{
		cacheDir: cacheDir,
		s3:       s3,
		interval: 5 * time.Minute,
		delay:    2 * time.Minute,
		window:   24 * time.Hour,
		log:      log.With().Str("component", "upload-reconciler").Logger(),
		stop:     make(chan struct{}),
	}
}

func (r *UploadReconciler) Start() { go r.loop() }
func (r *UploadReconciler) Stop()  { r.stopOnce.Do(func() { close(r.stop) }) }

func (r *UploadReconciler) loop() {
	// Delay first run to let startup uploads settle
	select {
	case <-time.After(r.delay):
	case <-r.stop:
		return
	}

	r.reconcile()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stop:
			return
		}
	}
}

// reconcile returns the number of files uploaded.
func (r *UploadReconciler) reconcile() int {
	var uploaded, failed, checked int

	cutoff := time.Now().Add(-r.window)

	sessions, _ := os.ReadDir(r.cacheDir)
	for _, session := range sessions {
		if !session.IsDir() {
			continue
		}
		sessionPath := filepath.Join(r.cacheDir, session.Name())
		files, _ := os.ReadDir(sessionPath)
		for _, f := range files {
			if f.IsDir() || isTempFile(f.Name()) {
				continue
			}
			info, err := f.Info()
			if err != nil || info.ModTime().Before(cutoff) {
				continue
			}
			checked++
			key := session.Name() + "/" + f.Name()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			exists := r.s3.Exists(ctx, key)
			cancel()
			if exists {
				continue
			}

			data, readErr := os.ReadFile(filepath.Join(sessionPath, f.Name()))
			if readErr != nil {
				continue
			}

			ct := ContentTypeFromExt(filepath.Ext(f.Name()))
			ctx, cancel = context.WithTimeout(context.Background(), 2*time.Minute)
			if saveErr := r.s3.Save(ctx, key, data, ct); saveErr != nil {
				r.log.Warn().Err(saveErr).Str("key", key).Msg("reconcile upload failed")
				failed++
			} else {
				uploaded++
			}
			cancel()
		}
	}

	if uploaded > 0 || failed > 0 {
		r.log.Info().
			Int("uploaded", uploaded).
			Int("failed", failed).
			Int("checked", checked).
			Msg("reconcile complete")
	}
	return uploaded
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".audio-") && strings.HasSuffix(name, ".tmp")
}
