// Package progress tracks per-session processing progress and caches
// finished results in Redis. Both degrade gracefully when Redis is absent:
// progress falls back to JSON files and the cache becomes a no-op.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProgressTTL is how long progress records live in Redis.
const ProgressTTL = time.Hour

// Session statuses derived from the progress percentage.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Progress is the polling view of a session.
type Progress struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Progress  int       `json:"progress"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusFor maps a progress percentage to a session status. Negative values
// mean the session failed.
func StatusFor(pct int) string {
	switch {
	case pct >= 100:
		return StatusCompleted
	case pct >= 0:
		return StatusProcessing
	}
	return StatusError
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Tracker records session progress in Redis and always mirrors it to a
// JSON file so progress survives a Redis outage.
type Tracker struct {
	rdb *redis.Client // nil disables Redis
	dir string
	log zerolog.Logger
}

// NewTracker creates a tracker. rdb may be nil.
func NewTracker(rdb *redis.Client, dir string, log zerolog.Logger) *Tracker {
	return &Tracker{
		rdb: rdb,
		dir: dir,
		log: log.With().Str("component", "progress").Logger(),
	}
}

func progressKey(sessionID string) string { return "progress:" + sessionID }

func (t *Tracker) file(sessionID string) string {
	return filepath.Join(t.dir, filepath.Base(sessionID)+".json")
}

// Update records the current stage of a session. Errors are logged.
func (t *Tracker) Update(ctx context.Context, sessionID string, pct int, stage, message string) {
	if stage == "" {
		stage = message
	}
	p := Progress{
		SessionID: sessionID,
		Message:   message,
		Progress:  pct,
		Stage:     stage,
		Status:    StatusFor(pct),
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("progress marshal failed")
		return
	}

	if t.rdb != nil {
		if err := t.rdb.Set(ctx, progressKey(sessionID), data, ProgressTTL).Err(); err != nil {
			t.log.Warn().Err(err).Str("session_id", sessionID).Msg("progress cache write failed")
		}
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		t.log.Warn().Err(err).Str("dir", t.dir).Msg("progress dir create failed")
		return
	}
	if err := os.WriteFile(t.file(sessionID), data, 0o644); err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("progress file write failed")
	}
}

// Get returns the latest progress of a session: Redis first, then the file
// mirror, then a default "Initializing" record.
func (t *Tracker) Get(ctx context.Context, sessionID string) Progress {
	if t.rdb != nil {
		data, err := t.rdb.Get(ctx, progressKey(sessionID)).Bytes()
		switch {
		case err == nil:
			var p Progress
			if err := json.Unmarshal(data, &p); err == nil {
				return p
			}
			t.log.Warn().Str("session_id", sessionID).Msg("corrupt progress record in cache")
		case !errors.Is(err, redis.Nil):
			t.log.Warn().Err(err).Str("session_id", sessionID).Msg("progress cache read failed")
		}
	}

	if data, err := os.ReadFile(t.file(sessionID)); err == nil {
		var p Progress
		if err := json.Unmarshal(data, &p); err == nil {
			return p
		}
		t.log.Warn().Str("session_id", sessionID).Msg("corrupt progress file")
	}

	return Progress{
		SessionID: sessionID,
		Message:   "Processing...",
		Progress:  0,
		Stage:     "Initializing",
		Status:    StatusProcessing,
	}
}

// Known reports whether any progress has been recorded for a session.
func (t *Tracker) Known(ctx context.Context, sessionID string) bool {
	if t.rdb != nil {
		if n, err := t.rdb.Exists(ctx, progressKey(sessionID)).Result(); err == nil && n > 0 {
			return true
		}
	}
	_, err := os.Stat(t.file(sessionID))
	return err == nil
}
