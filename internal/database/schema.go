package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaTables are the tables schema.sql creates.
var schemaTables = []string{"sessions", "speaker_chunks"}

// ErrPartialSchema means some but not all schema tables exist, which
// schema.sql cannot repair on its own.
var ErrPartialSchema = errors.New("database has a partial intelliscript schema")

// InitSchema applies schemaSQL in one transaction when none of the schema
// tables exist yet. A complete schema is left to Migrate.
func (db *DB) InitSchema(ctx context.Context, schemaSQL []byte) error {
	var present int
	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ANY($1)`,
		schemaTables,
	).Scan(&present)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	switch present {
	case len(schemaTables):
		db.log.Debug().Msg("session schema present")
		return nil
	case 0:
	default:
		return fmt.Errorf("%w: %d of %d tables (%v)", ErrPartialSchema, present, len(schemaTables), schemaTables)
	}

	db.log.Info().Strs("tables", schemaTables).Msg("empty database, creating session schema")
	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, string(schemaSQL))
		return err
	})
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
