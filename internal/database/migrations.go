package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// migration is one idempotent change to the session schema. applied answers
// whether the change is already in place.
type migration struct {
	name    string
	sql     string
	applied string
}

// migrations run in order after InitSchema. Databases created from the
// current schema.sql already satisfy every check.
var migrations = []migration{
	{
		name:    "add sessions.content_digest",
		sql:     `ALTER TABLE sessions ADD COLUMN IF NOT EXISTS content_digest text`,
		applied: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'sessions' AND column_name = 'content_digest')`,
	},
	{
		name:    "add sessions digest index",
		sql:     `CREATE INDEX IF NOT EXISTS idx_sessions_digest ON sessions (content_digest) WHERE content_digest IS NOT NULL`,
		applied: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_sessions_digest')`,
	},
	{
		name:    "add speaker_chunks speaker index",
		sql:     `CREATE INDEX IF NOT EXISTS idx_speaker_chunks_speaker ON speaker_chunks (session_id, speaker)`,
		applied: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_speaker_chunks_speaker')`,
	},
}

// pendingMigrations returns the migrations whose check reports them missing.
func (db *DB) pendingMigrations(ctx context.Context) ([]migration, error) {
	var pending []migration
	for _, m := range migrations {
		var done bool
		if err := db.Pool.QueryRow(ctx, m.applied).Scan(&done); err != nil {
			return nil, fmt.Errorf("check migration %q: %w", m.name, err)
		}
		if !done {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate applies pending migrations, each in its own transaction. The first
// failure stops the run and returns a *MigrationError listing what is left.
func (db *DB) Migrate(ctx context.Context) error {
	pending, err := db.pendingMigrations(ctx)
	if err != nil {
		return err
	}
	for i, m := range pending {
		err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, m.sql)
			return err
		})
		if err != nil {
			return &MigrationError{failed: m, pending: pending[i:], err: err}
		}
		db.log.Info().Str("migration", m.name).Int("remaining", len(pending)-i-1).Msg("session schema migrated")
	}
	return nil
}

// MigrationError reports a failed migration together with the SQL an operator
// can run by hand to finish the upgrade.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	fmt.Fprintf(&b, "%d migration(s) outstanding. Apply as the table owner:\n\n", len(e.pending))
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart intelliscript.")
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.err }
