package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kushiiitd05/IntelliScript/internal/transcript"
)

// ResultTTL is how long finished documents stay cached.
const ResultTTL = 24 * time.Hour

// Cache keeps finished session documents in Redis. A nil client turns every
// operation into a no-op; Redis errors are logged and treated as misses.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a result cache. rdb may be nil.
func NewCache(rdb *redis.Client, log zerolog.Logger) *Cache {
	return &Cache{
		rdb: rdb,
		ttl: ResultTTL,
		log: log.With().Str("component", "result-cache").Logger(),
	}
}

func resultKey(sessionID string) string { return "result:" + sessionID }

// PutDocument caches a finished document by session ID.
func (c *Cache) PutDocument(ctx context.Context, doc *transcript.Document) {
	if c.rdb == nil || doc == nil {
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		c.log.Warn().Err(err).Str("session_id", doc.SessionID).Msg("result marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, resultKey(doc.SessionID), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("session_id", doc.SessionID).Msg("result cache write failed")
	}
}

// GetDocument returns a cached document, or nil on a miss.
func (c *Cache) GetDocument(ctx context.Context, sessionID string) *transcript.Document {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, resultKey(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("session_id", sessionID).Msg("result cache read failed")
		}
		return nil
	}
	var doc transcript.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("corrupt cached result")
		return nil
	}
	return &doc
}

// Forget drops a cached document.
func (c *Cache) Forget(ctx context.Context, sessionID string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, resultKey(sessionID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("result cache delete failed")
	}
}
