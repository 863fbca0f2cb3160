package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CachePruner evicts whole session directories from the local audio cache
// once they are older than the retention or the cache is over its size
// budget. With S3 configured, a session is only evicted when every one of its
// files is already in the bucket.
type CachePruner struct {
	cacheDir  string
	retention time.Duration
	maxBytes  int64
	interval  time.Duration
	s3        objectStore
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewCachePruner creates a pruner for cacheDir. Zero retention and zero maxGB
// disable the corresponding limit.
func NewCachePruner(cacheDir string, retention time.Duration, maxGB int, s3 *S3Store, log zerolog.Logger) *CachePruner {
	p := &CachePruner{
		cacheDir:  cacheDir,
		retention: retention,
		maxBytes:  int64(maxGB) << 30,
		interval:  time.Hour,
		log:       log.With().Str("component", "cache-pruner").Logger(),
		stop:      make(chan struct{}),
	}
	if s3 != nil {
		p.s3 = s3
	}
	return p
}

func (p *CachePruner) Start() { go p.loop() }

func (p *CachePruner) Stop() { p.stopOnce.Do(func() { close(p.stop) }) }

func (p *CachePruner) loop() {
	p.prune()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

// cachedSession is one session directory in the cache.
type cachedSession struct {
	id     string
	keys   []string
	size   int64
	newest time.Time
	busy   bool // a write is in progress
}

// scan lists session directories oldest first, with the total cache size.
func (p *CachePruner) scan() ([]cachedSession, int64) {
	entries, err := os.ReadDir(p.cacheDir)
	if err != nil {
		return nil, 0
	}
	var sessions []cachedSession
	var total int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s := cachedSession{id: e.Name()}
		root := filepath.Join(p.cacheDir, e.Name())
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if isTempFile(d.Name()) {
				s.busy = true
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(p.cacheDir, path)
			if err != nil {
				return nil
			}
			s.keys = append(s.keys, filepath.ToSlash(rel))
			s.size += info.Size()
			if info.ModTime().After(s.newest) {
				s.newest = info.ModTime()
			}
			return nil
		})
		total += s.size
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].newest.Before(sessions[j].newest)
	})
	return sessions, total
}

// synced reports whether every file of s is in S3.
func (p *CachePruner) synced(s cachedSession) bool {
	if p.s3 == nil {
		return true
	}
	for _, key := range s.keys {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ok := p.s3.Exists(ctx, key)
		cancel()
		if !ok {
			return false
		}
	}
	return true
}

// prune returns the number of sessions evicted.
func (p *CachePruner) prune() int {
	if p.retention == 0 && p.maxBytes == 0 {
		return 0
	}

	sessions, total := p.scan()
	cutoff := time.Now().Add(-p.retention)
	var evicted, unsynced int
	var freed int64

	for _, s := range sessions {
		expired := p.retention > 0 && s.newest.Before(cutoff)
		overBudget := p.maxBytes > 0 && total > p.maxBytes
		if !expired && !overBudget {
			continue
		}
		if s.busy {
			continue
		}
		if !p.synced(s) {
			unsynced++
			p.log.Warn().Str("session_id", s.id).Msg("skipping eviction: session audio not in S3")
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.cacheDir, s.id)); err != nil {
			p.log.Warn().Err(err).Str("session_id", s.id).Msg("eviction failed")
			continue
		}
		evicted++
		freed += s.size
		total -= s.size
	}

	if evicted > 0 || unsynced > 0 {
		p.log.Info().
			Int("evicted_sessions", evicted).
			Str("freed", humanizeBytes(freed)).
			Str("remaining", humanizeBytes(total)).
			Int("skipped_not_in_s3", unsynced).
			Msg("audio cache pruned")
	}
	return evicted
}

func humanizeBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
