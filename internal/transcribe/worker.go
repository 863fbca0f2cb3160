package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/audio"
	"github.com/kushiiitd05/IntelliScript/internal/diarize"
	"github.com/kushiiitd05/IntelliScript/internal/metrics"
	"github.com/kushiiitd05/IntelliScript/internal/storage"
	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// Job is one uploaded or discovered recording to process.
type Job struct {
	SessionID   string
	MediaPath   string // local path of the uploaded media
	Source      string // original file name
	Language    string
	NumSpeakers int
	MinSpeakers int
	MaxSpeakers int
	RemoveMedia bool // delete MediaPath once processed
}

// Session progress milestones.
const (
	ProgressAudio      = 10
	ProgressTranscribe = 30
	ProgressDiarize    = 60
	ProgressSummarize  = 80
	ProgressPersist    = 90
	ProgressComplete   = 100
	ProgressFailed     = -1
)

// QueueStats reports the current state of the session queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Workers   int   `json:"workers"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// AudioCleaner turns a media file into recognition-ready audio.
type AudioCleaner interface {
	Run(ctx context.Context, src, dst string) (audio.Result, error)
}

// Summarizer condenses a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ProgressReporter records session progress for polling clients.
type ProgressReporter interface {
	Update(ctx context.Context, sessionID string, pct int, stage, message string)
}

// StatusPublisher pushes session status events to subscribers.
type StatusPublisher interface {
	PublishStatus(sessionID, status string, pct int, message string)
}

// ResultStore persists finished sessions.
type ResultStore interface {
	MarkProcessing(ctx context.Context, sessionID string) error
	SaveResult(ctx context.Context, doc *transcript.Document) error
	MarkFailed(ctx context.Context, sessionID, message string) error
}

// ResultCache keeps finished documents for fast re-reads.
type ResultCache interface {
	PutDocument(ctx context.Context, doc *transcript.Document)
}

// WorkerPoolOptions configures the session worker pool. Diarizer, Summarizer,
// Progress, Publisher, Cache and Store are optional.
type WorkerPoolOptions struct {
	Cleaner    AudioCleaner
	STT        Provider
	Diarizer   diarize.Provider
	Summarizer Summarizer
	Results    ResultStore
	Cache      ResultCache
	Progress   ProgressReporter
	Publisher  StatusPublisher
	Store      storage.AudioStore

	Transcribe TranscribeOpts
	Chunking   transcript.Options
	WorkDir    string
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Log        zerolog.Logger
}

// WorkerPool processes sessions on a fixed number of goroutines.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new session worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("session worker pool started")
}

// ErrShutdown is the failure recorded for sessions cut short by Stop.
var ErrShutdown = errors.New("interrupted by shutdown")

// Stop stops accepting jobs and cancels running sessions. Sessions still in
// the queue are marked failed without being processed.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.cancel()
	wp.wg.Wait()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("session worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or the
// pool is stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Workers:   wp.opts.Workers,
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// Pending returns the number of queued jobs.
func (wp *WorkerPool) Pending() int { return len(wp.jobs) }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

// Model returns the configured speech-to-text model name.
func (wp *WorkerPool) Model() string {
	if wp.opts.STT == nil {
		return ""
	}
	return wp.opts.STT.Model()
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		start := time.Now()
		jlog := log.With().Str("session_id", job.SessionID).Logger()
		if err := wp.processJob(jlog, job); err != nil {
			if wp.ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", ErrShutdown, err)
			}
			wp.failed.Add(1)
			metrics.SessionsTotal.WithLabelValues("error").Inc()
			jlog.Warn().Err(err).Str("source", job.Source).Msg("session failed")
			wp.fail(job, err)
		} else {
			wp.completed.Add(1)
			metrics.SessionsTotal.WithLabelValues("completed").Inc()
		}
		metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, job Job) error {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.JobTimeout)
	defer cancel()
	if job.RemoveMedia {
		defer func() {
			if err := os.Remove(job.MediaPath); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", job.MediaPath).Msg("failed to remove spooled media")
			}
		}()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := wp.opts.Results.MarkProcessing(ctx, job.SessionID); err != nil {
		log.Warn().Err(err).Msg("failed to mark session processing")
	}

	scratch, err := os.MkdirTemp(wp.opts.WorkDir, "session-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	// 1. Clean audio
	wp.report(ctx, job.SessionID, ProgressAudio, "audio", "Extracting and cleaning audio")
	cleaned := filepath.Join(scratch, "clean.wav")
	res, err := wp.opts.Cleaner.Run(ctx, job.MediaPath, cleaned)
	metrics.ObserveAudio(res)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	wp.keepCleanAudio(ctx, log, job, cleaned)

	// 2. Speech to text
	wp.report(ctx, job.SessionID, ProgressTranscribe, "transcribe", "Transcribing audio")
	opts := wp.opts.Transcribe
	if job.Language != "" {
		opts.Language = job.Language
	}
	stt, err := wp.opts.STT.Transcribe(ctx, cleaned, opts)
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(wp.opts.STT.Name()).Inc()
		return fmt.Errorf("%s: %w", wp.opts.STT.Name(), err)
	}

	degradations := make([]string, 0, len(res.Degradations))
	for _, d := range res.Degradations {
		degradations = append(degradations, fmt.Sprintf("%s: %s", d.Stage, d.Fallback))
	}

	// 3. Speaker turns. Diarization problems leave the transcript unattributed.
	wp.report(ctx, job.SessionID, ProgressDiarize, "diarize", "Identifying speakers")
	var turns []transcript.SpeakerTurn
	if wp.opts.Diarizer != nil {
		turns, err = wp.opts.Diarizer.Diarize(ctx, cleaned, diarize.Options{
			NumSpeakers: job.NumSpeakers,
			MinSpeakers: job.MinSpeakers,
			MaxSpeakers: job.MaxSpeakers,
			Language:    stt.Language,
		})
		if err != nil {
			metrics.ProviderErrorsTotal.WithLabelValues(wp.opts.Diarizer.Name()).Inc()
			log.Warn().Err(err).Msg("diarization failed, continuing without speakers")
			degradations = append(degradations, "diarize: "+err.Error())
			turns = nil
		}
	}

	doc := &transcript.Document{
		SessionID:    job.SessionID,
		Source:       job.Source,
		Language:     stt.Language,
		Duration:     stt.Duration,
		Text:         strings.TrimSpace(stt.Text),
		Words:        stt.Words,
		Chunks:       transcript.Merge(stt.Words, turns, wp.opts.Chunking),
		AudioOutcome: res.Outcome.String(),
		Degradations: degradations,
		CreatedAt:    time.Now().UTC(),
	}
	if doc.Words == nil {
		doc.Words = []transcript.Word{}
	}
	if doc.Duration == 0 {
		doc.Duration = res.Output.Duration.Seconds()
	}

	// 4. Summary (optional)
	if wp.opts.Summarizer != nil && doc.Text != "" {
		wp.report(ctx, job.SessionID, ProgressSummarize, "summarize", "Generating summary")
		summary, err := wp.opts.Summarizer.Summarize(ctx, doc.Text)
		if err != nil {
			metrics.ProviderErrorsTotal.WithLabelValues("llm").Inc()
			log.Warn().Err(err).Msg("summarization failed")
		} else {
			doc.Summary = summary
		}
	}

	// 5. Persist
	wp.report(ctx, job.SessionID, ProgressPersist, "persist", "Saving results")
	if err := wp.opts.Results.SaveResult(ctx, doc); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if wp.opts.Cache != nil {
		wp.opts.Cache.PutDocument(ctx, doc)
	}

	wp.report(ctx, job.SessionID, ProgressComplete, "complete", "Processing complete")
	log.Info().
		Str("source", job.Source).
		Int("words", len(doc.Words)).
		Int("chunks", len(doc.Chunks)).
		Int("speakers", len(doc.Speakers())).
		Str("audio", doc.AudioOutcome).
		Msg("session complete")
	return nil
}

// keepCleanAudio stores the cleaned audio for download. Failures are logged.
func (wp *WorkerPool) keepCleanAudio(ctx context.Context, log zerolog.Logger, job Job, path string) {
	if wp.opts.Store == nil {
		return
	}
	data, err := os.ReadFile(path)
	if err == nil {
		err = wp.opts.Store.Save(ctx, storage.CleanAudioKey(job.SessionID), data, "audio/wav")
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to store cleaned audio")
	}
}

func (wp *WorkerPool) fail(job Job, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(wp.ctx), 10*time.Second)
	defer cancel()

	msg := cause.Error()
	var serr *audio.StageError
	if errors.As(cause, &serr) {
		msg = fmt.Sprintf("audio %s failed: %v", serr.Stage, serr.Err)
	}
	wp.report(ctx, job.SessionID, ProgressFailed, "error", msg)
	if err := wp.opts.Results.MarkFailed(ctx, job.SessionID, msg); err != nil {
		wp.log.Warn().Err(err).Str("session_id", job.SessionID).Msg("failed to record session failure")
	}
}

func (wp *WorkerPool) report(ctx context.Context, sessionID string, pct int, stage, message string) {
	if wp.opts.Progress != nil {
		wp.opts.Progress.Update(ctx, sessionID, pct, stage, message)
	}
	if wp.opts.Publisher != nil {
		wp.opts.Publisher.PublishStatus(sessionID, statusFor(pct), pct, message)
	}
}

func statusFor(pct int) string {
	switch {
	case pct >= ProgressComplete:
		return "completed"
	case pct >= 0:
		return "processing"
	}
	return "error"
}
