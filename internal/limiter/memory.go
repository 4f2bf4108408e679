package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	first        time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	now     func() time.Time
	entries map[string]*entry
	swept   time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, now: time.Now, entries: make(map[string]*entry)}
}

func key(username string, client []byte) string { return username + "\x00" + string(client) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, username string, client []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key(username, client)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the failure history for (username, client).
func (m *Memory) Success(_ context.Context, username string, client []byte) error {
	m.mu.Lock()
	delete(m.entries, key(username, client))
	m.mu.Unlock()
	return nil
}

// Failure records a failed attempt and blocks once MaxFails is reached within Window.
func (m *Memory) Failure(_ context.Context, username string, client []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	k := key(username, client)
	e, ok := m.entries[k]
	if !ok || now.Sub(e.first) > m.policy.Window {
		e = &entry{first: now}
		m.entries[k] = e
	}
	e.fails++
	if e.fails < m.policy.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}

// sweep drops entries whose window and block have both run out. It walks the
// map at most once per Window.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.swept) < m.policy.Window {
		return
	}
	m.swept = now
	for k, e := range m.entries {
		if now.Sub(e.first) > m.policy.Window && !e.blockedUntil.After(now) {
			delete(m.entries, k)
		}
	}
}
