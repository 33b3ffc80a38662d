// Package cache holds upstream responses keyed by credential digest.
// Entries past their TTL are not discarded immediately; they are kept
// for a stale window so a failing upstream can still be answered with
// the last known payload.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/synjan/qascan/pkg/models"
)

type Status int

const (
	StatusMiss Status = iota
	StatusHit
	StatusStale
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "HIT"
	case StatusStale:
		return "STALE"
	case StatusDisabled:
		return "DISABLED"
	default:
		return "MISS"
	}
}

type entry struct {
	payload     []byte
	fingerprint uint64
	storedAt    time.Time
}

// FetchFunc produces a fresh payload when the cache cannot serve one.
type FetchFunc func(ctx context.Context) ([]byte, error)

type Manager struct {
	cfg    models.CacheConfig
	logger *logrus.Logger

	mu      sync.RWMutex
	entries map[string]entry

	group singleflight.Group

	// now is swapped out in tests to step through TTL windows.
	now func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

func NewManager(cfg models.CacheConfig, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.SweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

func (m *Manager) IsEnabled() bool { return m.cfg.Enabled }

// Get returns the payload for key if it exists and is still fresh.
func (m *Manager) Get(key string) ([]byte, Status) {
	if !m.cfg.Enabled {
		return nil, StatusDisabled
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, StatusMiss
	}
	if m.now().Sub(e.storedAt) > m.cfg.TTL {
		return nil, StatusMiss
	}
	return e.payload, StatusHit
}

// GetStale returns the payload for key regardless of freshness, as
// long as it is still within the stale retention window. Used only
// after a fetch has failed.
func (m *Manager) GetStale(key string) ([]byte, bool) {
	if !m.cfg.Enabled {
		return nil, false
	}
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.cfg.StaleRetention > 0 && m.now().Sub(e.storedAt) > m.cfg.StaleRetention {
		return nil, false
	}
	return e.payload, true
}

// Put stores payload under key, evicting the oldest entry when the
// cache is full. Storing an unchanged payload still refreshes its TTL.
func (m *Manager) Put(key string, payload []byte) {
	if !m.cfg.Enabled {
		return
	}
	fp := xxh3.Hash(payload)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[key]; ok && prev.fingerprint == fp {
		prev.storedAt = m.now()
		m.entries[key] = prev
		return
	}
	if _, ok := m.entries[key]; !ok && m.cfg.MaxEntries > 0 && len(m.entries) >= m.cfg.MaxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = entry{payload: payload, fingerprint: fp, storedAt: m.now()}
}

// Fetch is the full read path: serve fresh data from the cache, call
// fn on a miss, and fall back to stale data when fn fails. Concurrent
// fetches for the same key are collapsed into one upstream call.
func (m *Manager) Fetch(ctx context.Context, key string, fn FetchFunc) ([]byte, Status, error) {
	if !m.cfg.Enabled {
		payload, err := fn(ctx)
		return payload, StatusDisabled, err
	}

	if payload, status := m.Get(key); status == StatusHit {
		return payload, StatusHit, nil
	}

	payload, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have
		// filled the entry while this one waited.
		if payload, status := m.Get(key); status == StatusHit {
			return payload, nil
		}
		fresh, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		m.Put(key, fresh)
		return fresh, nil
	})
	if err == nil {
		return payload.([]byte), StatusMiss, nil
	}

	if stale, ok := m.GetStale(key); ok {
		m.logger.Warnf("Serving stale cache entry after fetch failure: %v", err)
		return stale, StatusStale, nil
	}
	return nil, StatusMiss, fmt.Errorf("fetch failed with no cached fallback: %w", err)
}

// Invalidate drops the entry for key, fresh or stale.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the sweep goroutine.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep drops entries older than the stale retention window. Entries
// that are merely past TTL stay put; they are the stale fallback.
func (m *Manager) sweep() {
	if m.cfg.StaleRetention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.cfg.StaleRetention)

	m.mu.Lock()
	removed := 0
	for key, e := range m.entries {
		if e.storedAt.Before(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debugf("Cache sweep removed %d expired entries", removed)
	}
}

func (m *Manager) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
