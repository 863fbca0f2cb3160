package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Workspace is a per-run scratch directory. Every intermediate file of a run
// lives here and Close removes all of them.
type Workspace struct {
	dir string
	seq int
	log zerolog.Logger
}

// NewWorkspace creates a fresh directory under base (os.TempDir when empty).
func NewWorkspace(base string, log zerolog.Logger) (*Workspace, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace base: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, "run-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir, log: log}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path returns a new, unused file path for the given stage.
func (w *Workspace) Path(stage Stage) string {
	w.seq++
	return filepath.Join(w.dir, fmt.Sprintf("%02d-%s.wav", w.seq, stage))
}

// Close removes the workspace. Removal errors are logged, not returned.
func (w *Workspace) Close() {
	if err := os.RemoveAll(w.dir); err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("failed to remove workspace")
	}
}
