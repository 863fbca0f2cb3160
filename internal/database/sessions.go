package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// SessionRow is the input for creating a session.
type SessionRow struct {
	ID            string
	Source        string
	Language      string
	NumSpeakers   int
	ContentDigest string
}

// Session is the session representation for API responses.
type Session struct {
	ID           string     `json:"session_id"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	Language     string     `json:"language,omitempty"`
	NumSpeakers  *int       `json:"num_speakers,omitempty"`
	Duration     *float64   `json:"duration,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	AudioOutcome string     `json:"audio_outcome,omitempty"`
	Error        string     `json:"error,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CreateSession inserts a queued session.
func (db *DB) CreateSession(ctx context.Context, row SessionRow) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sessions (id, source, status, language, num_speakers, content_digest)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, row.ID, row.Source, StatusQueued, pqString(row.Language), pqInt(row.NumSpeakers), pqString(row.ContentDigest))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveResult stores a finished session and replaces its speaker chunks in
// one transaction.
func (db *DB) SaveResult(ctx context.Context, doc *transcript.Document) error {
	words, err := json.Marshal(doc.Words)
	if err != nil {
		return fmt.Errorf("marshal words: %w", err)
	}
	degradations, err := json.Marshal(doc.Degradations)
	if err != nil {
		return fmt.Errorf("marshal degradations: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sessions SET
			status = $2,
			language = $3,
			duration_s = $4,
			transcript = $5,
			words = $6,
			summary = $7,
			audio_outcome = $8,
			degradations = $9,
			num_speakers = $10,
			error = NULL,
			updated_at = now(),
			completed_at = now()
		WHERE id = $1
	`, doc.SessionID, StatusCompleted, pqString(doc.Language), doc.Duration, doc.Text,
		words, pqString(doc.Summary), doc.AudioOutcome, degradations, len(doc.Speakers()))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", doc.SessionID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM speaker_chunks WHERE session_id = $1`, doc.SessionID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if len(doc.Chunks) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"speaker_chunks"},
			chunkColumns,
			pgx.CopyFromRows(chunkRows(doc.SessionID, doc.Chunks)),
		); err != nil {
			return fmt.Errorf("copy chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var chunkColumns = []string{"session_id", "idx", "speaker", "text", "start_s", "end_s"}

func chunkRows(sessionID string, chunks []transcript.SpeakerChunk) [][]any {
	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		rows[i] = []any{sessionID, i, c.Speaker, c.Text, c.Start, c.End}
	}
	return rows
}

// MarkProcessing flags a queued session as picked up.
func (db *DB) MarkProcessing(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1
	`, id, StatusProcessing)
	return err
}

// MarkFailed records a failed session. Any partial transcript is discarded.
func (db *DB) MarkFailed(ctx context.Context, id, message string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sessions SET
			status = $2,
			error = $3,
			transcript = NULL,
			words = NULL,
			summary = NULL,
			updated_at = now()
		WHERE id = $1
	`, id, StatusError, message)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session and its chunks.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `
	s.id, s.source, s.status, COALESCE(s.language, ''), s.num_speakers, s.duration_s,
	COALESCE(s.summary, ''), COALESCE(s.audio_outcome, ''), COALESCE(s.error, ''),
	(SELECT count(*) FROM speaker_chunks c WHERE c.session_id = s.id),
	s.created_at, s.updated_at, s.completed_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.Source, &s.Status, &s.Language, &s.NumSpeakers, &s.Duration,
		&s.Summary, &s.AudioOutcome, &s.Error,
		&s.ChunkCount,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession returns a session summary.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	return scanSession(db.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id))
}

// FindCompletedByDigest returns the newest completed session whose upload had
// the given content digest.
func (db *DB) FindCompletedByDigest(ctx context.Context, digest string) (*Session, error) {
	return scanSession(db.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.content_digest = $1 AND s.status = $2
		ORDER BY s.created_at DESC
		LIMIT 1
	`, digest, StatusCompleted))
}

// ListSessions returns sessions newest first with the total count.
func (db *DB) ListSessions(ctx context.Context, limit, offset int) ([]Session, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		ORDER BY s.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *s)
	}
	return result, total, rows.Err()
}

// GetDocument loads the full transcript document of a completed session.
func (db *DB) GetDocument(ctx context.Context, id string) (*transcript.Document, error) {
	var (
		doc          transcript.Document
		status       string
		duration     *float64
		words        []byte
		degradations []byte
		completedAt  *time.Time
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT id, source, status, COALESCE(language, ''), duration_s,
			COALESCE(transcript, ''), words, COALESCE(summary, ''),
			COALESCE(audio_outcome, ''), degradations, created_at, completed_at
		FROM sessions WHERE id = $1
	`, id).Scan(
		&doc.SessionID, &doc.Source, &status, &doc.Language, &duration,
		&doc.Text, &words, &doc.Summary,
		&doc.AudioOutcome, &degradations, &doc.CreatedAt, &completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && status != StatusCompleted) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if duration != nil {
		doc.Duration = *duration
	}
	if err := unmarshalOptional(words, &doc.Words); err != nil {
		return nil, fmt.Errorf("decode words: %w", err)
	}
	if err := unmarshalOptional(degradations, &doc.Degradations); err != nil {
		return nil, fmt.Errorf("decode degradations: %w", err)
	}
	if doc.Words == nil {
		doc.Words = []transcript.Word{}
	}

	doc.Chunks, err = db.ListChunks(ctx, id, "")
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func unmarshalOptional(raw []byte, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// ListChunks returns a session's speaker chunks in order, optionally for a
// single speaker.
func (db *DB) ListChunks(ctx context.Context, sessionID, speaker string) ([]transcript.SpeakerChunk, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT speaker, text, start_s, end_s
		FROM speaker_chunks
		WHERE session_id = $1 AND ($2::text IS NULL OR speaker = $2)
		ORDER BY idx
	`, sessionID, pqString(speaker))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []transcript.SpeakerChunk{}
	for rows.Next() {
		var c transcript.SpeakerChunk
		if err := rows.Scan(&c.Speaker, &c.Text, &c.Start, &c.End); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// pqString and pqInt convert empty Go values to nil so PostgreSQL sees NULL.
func pqString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pqInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
