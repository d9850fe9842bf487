package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/pulsewatch/monitor/internal/outcome"
)

// Entry is the latest result for one check plus bookkeeping.
type Entry struct {
	Result     outcome.Result
	AlertCount int
	UpdatedAt  time.Time
}

// Store is a thread-safe in-memory result store keyed by check id.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Observe records r as the latest result for its check.
func (s *Store) Observe(_ context.Context, r outcome.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[r.Check.ID]
	if !ok {
		e = &Entry{}
		s.data[r.Check.ID] = e
	}
	e.Result = r
	e.UpdatedAt = s.now()
	if r.Alert {
		e.AlertCount++
	}
}

// Get returns a copy of the live entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok || !s.live(e) {
		return Entry{}, false
	}
	return *e, true
}

// List returns copies of all live entries ordered by check id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Result.Check.ID < out[j].Result.Check.ID
	})
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// TTL returns the configured staleness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes entries whose UpdatedAt is older than now minus TTL and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (at least once a second) until ctx
// is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("status: evicted stale checks", "count", n)
			}
		}
	}
}

func (s *Store) live(e *Entry) bool {
	return e.UpdatedAt.After(s.now().Add(-s.ttl))
}
