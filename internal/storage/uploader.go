package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AsyncUploader pushes locally saved files to S3 in the background so
// request handlers and workers never wait on the object store.
type AsyncUploader struct {
	s3       *S3Store
	ch       chan uploadJob
	workers  int
	log      zerolog.Logger
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	uploaded atomic.Int64
	dropped  atomic.Int64
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an async S3 uploader with the given buffer size.
func NewAsyncUploader(s3 *S3Store, bufferSize, workers int, log zerolog.Logger) *AsyncUploader {
	if workers < 1 {
		workers = 1
	}
	return &AsyncUploader{
		s3:      s3,
		ch:      make(chan uploadJob, bufferSize),
		workers: workers,
		log:     log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an S3 upload job. Non-blocking: drops with a warning if full
// or stopped. The reconciler picks up dropped files later.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.stopped {
		u.dropped.Add(1)
		return false
	}
	select {
	case u.ch <- uploadJob{key: key, data: data, contentType: contentType}:
		return true
	default:
		u.dropped.Add(1)
		u.log.Warn().Str("key", key).Msg("async upload queue full, skipping (file safe in cache)")
		return false
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start() {
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", u.workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop stops accepting uploads and waits for queued ones to finish.
func (u *AsyncUploader) Stop() {
	u.mu.Lock()
	if !u.stopped {
		u.stopped = true
		close(u.ch)
	}
	u.mu.Unlock()
	u.wg.Wait()
	u.log.Info().Int64("uploaded", u.uploaded.Load()).Int64("dropped", u.dropped.Load()).Msg("async uploader stopped")
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := u.s3.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.log.Error().Err(err).Str("key", job.key).Msg("async S3 upload failed (file safe in cache)")
		} else {
			u.uploaded.Add(1)
		}
		cancel()
	}
}
