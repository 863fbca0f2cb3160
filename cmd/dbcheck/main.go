package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "sessions" {
		recentSessions(ctx, pool)
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "orphans" {
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		fixOrphanChunks(ctx, pool, dryRun)
		return
	}

	// Default: table counts and status breakdown
	tables := []string{"sessions", "speaker_chunks"}
	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, t := range tables {
		var count int64
		pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count)
		fmt.Printf("%-25s %d\n", t, count)
	}

	fmt.Println("\n── Sessions By Status ──")
	rows, _ := pool.Query(ctx, `SELECT status, count(*) FROM sessions GROUP BY status ORDER BY status`)
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		rows.Scan(&status, &count)
		fmt.Printf("  %-12s %d\n", status, count)
	}
}

func recentSessions(ctx context.Context, pool *pgxpool.Pool) {
	fmt.Println("── Most Recent Sessions (20) ──")
	rows, err := pool.Query(ctx, `
		SELECT s.id, s.source, s.status, s.duration_s, COALESCE(s.audio_outcome, ''),
		       COALESCE(s.error, ''), s.created_at,
		       (SELECT count(*) FROM speaker_chunks c WHERE c.session_id = s.id),
		       (SELECT count(DISTINCT speaker) FROM speaker_chunks c WHERE c.session_id = s.id)
		FROM sessions s
		ORDER BY s.created_at DESC
		LIMIT 20
	`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var id, source, status, outcome, errMsg string
		var duration *float64
		var created time.Time
		var chunks, speakers int
		rows.Scan(&id, &source, &status, &duration, &outcome, &errMsg, &created, &chunks, &speakers)
		d := "-"
		if duration != nil {
			d = fmt.Sprintf("%.1fs", *duration)
		}
		fmt.Printf("  %s %-10s %-8s %6s chunks=%d speakers=%d %s %q\n",
			created.Format(time.DateTime), status, outcome, d, chunks, speakers, id, source)
		if errMsg != "" {
			fmt.Printf("      error: %s\n", errMsg)
		}
	}
}

// fixOrphanChunks removes chunks left on sessions that are not completed.
// A failed session must not expose a partial transcript.
func fixOrphanChunks(ctx context.Context, pool *pgxpool.Pool, dryRun bool) {
	var n int64
	pool.QueryRow(ctx, `
		SELECT count(*) FROM speaker_chunks c
		JOIN sessions s ON s.id = c.session_id
		WHERE s.status <> 'completed'
	`).Scan(&n)
	fmt.Printf("Chunks on non-completed sessions: %d\n", n)
	if n == 0 || dryRun {
		if n > 0 {
			fmt.Println("Dry run. Pass 'apply' to delete them.")
		}
		return
	}
	tag, err := pool.Exec(ctx, `
		DELETE FROM speaker_chunks c USING sessions s
		WHERE s.id = c.session_id AND s.status <> 'completed'
	`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d chunks\n", tag.RowsAffected())
}
