package database

import (
	"context"
	"time"
)

// PurgeSessionsOlderThan deletes sessions (and, by cascade, their chunks)
// created before now minus retention. Returns the IDs removed so callers can
// clean up stored audio.
func (db *DB) PurgeSessionsOlderThan(ctx context.Context, retention time.Duration) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		DELETE FROM sessions WHERE created_at < now() - make_interval(secs => $1)
		RETURNING id
	`, retention.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FailStaleSessions marks sessions stuck in queued/processing since before
// the cutoff as failed. Run at startup: the in-memory queue does not survive
// a restart.
func (db *DB) FailStaleSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sessions SET status = $1, error = 'interrupted by restart', updated_at = now()
		WHERE status IN ($2, $3) AND updated_at < $4
	`, StatusError, StatusQueued, StatusProcessing, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
