// Package session provides the bounded-lifetime conversation cache: per
// conversation-id message history handed to the generation provider so
// callers never resend prior turns.
//
// Locking is two-level: the cache RWMutex guards the map structure
// (insert/delete), each session's own mutex guards its history. Two
// conversations never contend on the same lock, and the sweep removes a
// session atomically from the reader's perspective — a lookup sees the
// session or sees it absent, never a torn state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/clinico/clinico/internal/domain/fault"
	"github.com/clinico/clinico/internal/infra/llm"
	"github.com/clinico/clinico/internal/logger"
)

const (
	// DefaultTTL is the idle lifetime of a conversation.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often expired conversations are reclaimed.
	DefaultSweepInterval = 5 * time.Minute
)

// Session is one conversation's accumulated history. Obtained from
// Cache.GetOrCreate; safe for concurrent use.
type Session struct {
	id string

	mu         sync.Mutex
	history    []llm.Message
	lastUsedAt time.Time
}

// ID returns the conversation id this session belongs to.
func (s *Session) ID() string { return s.id }

// History returns a copy of the accumulated turns in insertion order.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append records turns at the end of the history and refreshes the idle clock.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	s.lastUsedAt = time.Now()
}

// Len returns the number of accumulated turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// touch refreshes the idle clock.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsedAt = now
	s.mu.Unlock()
}

// lastUsed reads the idle clock.
func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// Cache maps conversation ids to sessions with idle expiry.
// Construct once at process start; Run owns the background sweep.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl           time.Duration
	sweepInterval time.Duration
}

// NewCache creates a Cache. Non-positive ttl or interval fall back to the
// defaults.
func NewCache(ttl, sweepInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Cache{
		sessions:      make(map[string]*Session),
		ttl:           ttl,
		sweepInterval: sweepInterval,
	}
}

// GetOrCreate returns the session for id, creating an empty one on first
// reference, and refreshes its idle clock. An empty id is a validation
// error — callers must branch to the stateless path before calling this.
func (c *Cache) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, fault.Validationf("conversation id is empty")
	}

	now := time.Now()

	c.mu.RLock()
	s, ok := c.sessions[id]
	c.mu.RUnlock()
	if ok {
		s.touch(now)
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check: another goroutine may have created it between locks.
	if s, ok := c.sessions[id]; ok {
		s.touch(now)
		return s, nil
	}
	s = &Session{id: id, lastUsedAt: now}
	c.sessions[id] = s
	return s, nil
}

// Len returns the number of live sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Sweep removes every session idle longer than the TTL as of now and returns
// how many were evicted. Each entry is evaluated independently; a single
// misbehaving entry never aborts the rest of the pass.
func (c *Cache) Sweep(now time.Time) int {
	// Snapshot candidates without holding the map write lock, so lookups on
	// unrelated keys proceed while idle clocks are read.
	c.mu.RLock()
	candidates := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		candidates = append(candidates, s)
	}
	c.mu.RUnlock()

	evicted := 0
	for _, s := range candidates {
		if !c.sweepOne(s, now) {
			continue
		}
		evicted++
	}

	if evicted > 0 {
		logger.Log.WithField("evicted", evicted).Debug("session sweep complete")
	}
	return evicted
}

// sweepOne evicts a single session if it is still expired once the map write
// lock is held. Recovers from any per-entry panic so the pass continues.
func (c *Cache) sweepOne(s *Session, now time.Time) (evicted bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("conversation_id", s.id).
				Errorf("session sweep entry panicked: %v", r)
			evicted = false
		}
	}()

	if now.Sub(s.lastUsed()) <= c.ttl {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock: a GetOrCreate may have refreshed the
	// session between the snapshot and now.
	if now.Sub(s.lastUsed()) <= c.ttl {
		return false
	}
	delete(c.sessions, s.id)
	return true
}

// Run sweeps on the configured interval until ctx is cancelled.
// Launch with: go cache.Run(ctx)
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Sweep(now)
		}
	}
}
