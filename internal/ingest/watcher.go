// Package ingest picks up media files dropped into a watch directory and
// submits them as sessions.
package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/api"
	"github.com/kushiiitd05/IntelliScript/internal/metrics"
	"github.com/kushiiitd05/IntelliScript/internal/sessions"
)

// ProcessedDir is the subdirectory submitted files are moved into.
const ProcessedDir = ".processed"

// DefaultDebounce is how long a file must be quiet before it is submitted.
const DefaultDebounce = 2 * time.Second

// Submitter turns a media file into a queued session.
type Submitter interface {
	SubmitFile(ctx context.Context, path string) (sessions.Receipt, error)
}

// FileWatcher monitors a drop directory for new media files. Files that are
// still being written keep resetting the debounce timer, so a file is only
// submitted once copying has finished.
type FileWatcher struct {
	submitter Submitter
	watchDir  string
	debounce  time.Duration
	backfill  bool
	log       zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Stats
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher for watchDir. With backfill set, media
// already in the directory is submitted on Start.
func NewFileWatcher(submitter Submitter, watchDir string, backfill bool, log zerolog.Logger) *FileWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		submitter:      submitter,
		watchDir:       watchDir,
		debounce:       DefaultDebounce,
		backfill:       backfill,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories, and
// begins watching for new files.
func (fw *FileWatcher) Start() error {
	if err := os.MkdirAll(filepath.Join(fw.watchDir, ProcessedDir), 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ProcessedDir {
			return filepath.SkipDir
		}
		if addErr := w.Add(path); addErr != nil {
			fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
		} else {
			dirCount++
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Msg("file watcher initialized")

	fw.wg.Add(1)
	go fw.watchLoop()

	if fw.backfill {
		fw.wg.Add(1)
		go fw.runBackfill()
	} else {
		fw.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher and cancels pending submissions.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	fw.cancel()
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()
	fw.wg.Wait()

	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if fw.inProcessedDir(event.Name) {
				continue
			}

			// New subdirectory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !fw.accept(event.Name) {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// accept filters out hidden, partial, and non-media files.
func (fw *FileWatcher) accept(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	if !sessions.IsMedia(name) {
		fw.filesSkipped.Add(1)
		return false
	}
	return true
}

func (fw *FileWatcher) inProcessedDir(path string) bool {
	rel, err := filepath.Rel(fw.watchDir, path)
	if err != nil {
		return false
	}
	return rel == ProcessedDir || strings.HasPrefix(rel, ProcessedDir+string(filepath.Separator))
}

// scheduleProcess debounces file processing so a file is submitted once it
// has stopped changing.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(fw.debounce)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(fw.debounce, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.processFile(path)
	})
}

// processFile submits a media file and moves it into the processed directory
// so it is not picked up again.
func (fw *FileWatcher) processFile(path string) {
	if fw.ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		fw.filesSkipped.Add(1)
		return
	}

	receipt, err := fw.submitter.SubmitFile(fw.ctx, path)
	if err != nil {
		fw.filesSkipped.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to submit watched file")
		return
	}

	dst := filepath.Join(fw.watchDir, ProcessedDir, receipt.SessionID+"-"+filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to move processed file")
	}

	fw.filesProcessed.Add(1)
	metrics.WatcherFilesTotal.Inc()
	fw.log.Info().
		Str("path", path).
		Str("session_id", receipt.SessionID).
		Bool("cached", receipt.Cached).
		Msg("watched file submitted")
}

// runBackfill submits media already present in the watch directory,
// oldest first.
func (fw *FileWatcher) runBackfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ProcessedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !fw.accept(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")

	for _, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(f.path)
	}

	fw.status.Store("watching")
	fw.log.Info().
		Int("files", len(files)).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}
