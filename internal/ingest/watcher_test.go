package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/sessions"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	paths []string
	err   error
	done  chan string
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{done: make(chan string, 10)}
}

func (f *fakeSubmitter) SubmitFile(_ context.Context, path string) (sessions.Receipt, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	defer func() { f.done <- path }()
	if f.err != nil {
		return sessions.Receipt{}, f.err
	}
	return sessions.Receipt{SessionID: "sess-1", Status: "queued"}, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func waitSubmit(t *testing.T, f *fakeSubmitter) string {
	t.Helper()
	select {
	case p := <-f.done:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission")
		return ""
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBackfillSubmitsExistingMedia(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "meeting.mp3"), "ID3")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not media")

	sub := newFakeSubmitter()
	fw := NewFileWatcher(sub, dir, true, zerolog.Nop())
	if err := fw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	got := waitSubmit(t, sub)
	if filepath.Base(got) != "meeting.mp3" {
		t.Errorf("submitted %q, want meeting.mp3", got)
	}

	eventually(t, func() bool { return fw.Status().FilesProcessed == 1 })

	moved := filepath.Join(dir, ProcessedDir, "sess-1-meeting.mp3")
	if _, err := os.Stat(moved); err != nil {
		t.Errorf("expected file moved to %s: %v", moved, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("non-media file should be left alone: %v", err)
	}

	if st := fw.Status(); st.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", st.FilesSkipped)
	}
}

func TestWatcherPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	sub := newFakeSubmitter()
	fw := NewFileWatcher(sub, dir, false, zerolog.Nop())
	fw.debounce = 50 * time.Millisecond
	if err := fw.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	if s := fw.Status().Status; s != "watching" {
		t.Errorf("status = %q, want watching", s)
	}

	writeFile(t, filepath.Join(dir, "call.wav"), "RIFF")
	got := waitSubmit(t, sub)
	if filepath.Base(got) != "call.wav" {
		t.Errorf("submitted %q, want call.wav", got)
	}
}

func TestSubmitFailureLeavesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.mp4")
	writeFile(t, path, "data")

	sub := newFakeSubmitter()
	sub.err = errors.New("queue full")
	fw := NewFileWatcher(sub, dir, false, zerolog.Nop())
	fw.processFile(path)

	if sub.calls() != 1 {
		t.Fatalf("calls = %d, want 1", sub.calls())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file should stay in place after a failed submit: %v", err)
	}
	if fw.Status().FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", fw.Status().FilesSkipped)
	}
}

func TestEmptyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.mp3")
	writeFile(t, path, "")

	sub := newFakeSubmitter()
	fw := NewFileWatcher(sub, dir, false, zerolog.Nop())
	fw.processFile(path)

	if sub.calls() != 0 {
		t.Errorf("empty file should not be submitted")
	}
}

func TestAccept(t *testing.T) {
	fw := NewFileWatcher(newFakeSubmitter(), t.TempDir(), false, zerolog.Nop())
	tests := []struct {
		name string
		want bool
	}{
		{"talk.mp3", true},
		{"TALK.M4A", true},
		{"clip.mkv", true},
		{".hidden.mp3", false},
		{"upload.mp3.part", false},
		{"readme.md", false},
	}
	for _, tt := range tests {
		if got := fw.accept(tt.name); got != tt.want {
			t.Errorf("accept(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInProcessedDir(t *testing.T) {
	dir := t.TempDir()
	fw := NewFileWatcher(newFakeSubmitter(), dir, false, zerolog.Nop())
	if !fw.inProcessedDir(filepath.Join(dir, ProcessedDir, "a.mp3")) {
		t.Error("file under processed dir not detected")
	}
	if fw.inProcessedDir(filepath.Join(dir, "sub", "a.mp3")) {
		t.Error("regular subdirectory flagged as processed")
	}
}
