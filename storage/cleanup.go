package storage

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// CleanupReport counts what a cleanup pass removed. Version-skewed entries
// are counted as corrupted.
type CleanupReport struct {
	Expired   int
	Corrupted int
}

// Total returns the number of removed entries.
func (r CleanupReport) Total() int { return r.Expired + r.Corrupted }

// PerformCleanup scans every namespaced key and removes expired, corrupted,
// and version-skewed entries.
func (m *Manager) PerformCleanup() CleanupReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupLocked()
}

func (m *Manager) cleanupLocked() CleanupReport {
	var rep CleanupReport
	now := m.nowMillis()

	for _, full := range m.fullKeysLocked() {
		raw, ok, err := m.b.GetItem(full)
		if err != nil || !ok {
			continue
		}
		md, valid := parseMeta(raw)
		switch {
		case !valid || md.version != m.opt.Version:
			m.removeLocked(full)
			rep.Corrupted++
		case expired(md.createdAt, md.ttl, now):
			m.removeLocked(full)
			rep.Expired++
		}
	}

	if rep.Total() > 0 {
		m.opt.Logf("storage: cleanup removed %d expired and %d corrupted entries", rep.Expired, rep.Corrupted)
	}
	m.opt.Metrics.Cleanup(rep.Expired, rep.Corrupted)
	return rep
}

// emergencyCleanupLocked frees space after a quota failure. need is the
// size of the pending write.
//
//  1. drop every cache-category key;
//  2. run a regular cleanup;
//  3. if there is still not enough room, drop the oldest quarter of what
//     remains, never touching auth/session keys.
func (m *Manager) emergencyCleanupLocked(need int64) {
	evicted := 0
	for _, full := range m.fullKeysLocked() {
		if isCacheKey(strings.TrimPrefix(full, m.opt.Prefix)) {
			m.removeLocked(full)
			evicted++
		}
	}
	evicted += m.cleanupLocked().Total()

	if !m.hasRoomLocked(need) {
		evicted += m.evictOldestLocked()
	}

	m.opt.Logf("storage: emergency cleanup evicted %d entries", evicted)
	m.opt.Metrics.Emergency(evicted)
}

// evictOldestLocked removes the oldest 25% (rounded up) of the remaining
// namespaced entries by createdAt, skipping protected keys.
func (m *Manager) evictOldestLocked() int {
	type aged struct {
		full      string
		createdAt int64
	}

	all := m.fullKeysLocked()
	quota := (len(all) + 3) / 4

	var candidates []aged
	for _, full := range all {
		if isProtectedKey(strings.TrimPrefix(full, m.opt.Prefix)) {
			continue
		}
		var created int64
		if raw, ok, err := m.b.GetItem(full); err == nil && ok {
			if md, valid := parseMeta(raw); valid {
				created = md.createdAt
			}
		}
		candidates = append(candidates, aged{full: full, createdAt: created})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].createdAt < candidates[j].createdAt
	})

	if quota > len(candidates) {
		quota = len(candidates)
	}
	for _, c := range candidates[:quota] {
		m.removeLocked(c.full)
	}
	return quota
}

// hasRoomLocked reports whether need more bytes fit. Backends that cannot
// report usage are assumed to be full.
func (m *Manager) hasRoomLocked(need int64) bool {
	s, ok := m.b.(Sizer)
	if !ok {
		return false
	}
	used, limit, err := s.Usage()
	if err != nil {
		m.opt.Logf("storage: usage: %v", err)
		return false
	}
	return limit <= 0 || used+need <= limit
}

type meta struct {
	version   string
	createdAt int64
	ttl       *int64
}

// parseMeta reads envelope metadata without decoding the payload.
func parseMeta(raw string) (meta, bool) {
	if !gjson.Valid(raw) {
		return meta{}, false
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return meta{}, false
	}
	r := root.Get("version")
	c := root.Get("createdAt")
	if r.Type != gjson.String || (c.Exists() && c.Type != gjson.Number) {
		return meta{}, false
	}
	md := meta{version: r.String(), createdAt: c.Int()}
	switch t := root.Get("ttl"); t.Type {
	case gjson.Number:
		ttl := t.Int()
		md.ttl = &ttl
	case gjson.Null:
	default:
		return meta{}, false
	}
	return md, true
}

// isCacheKey reports whether key belongs to the disposable cache category.
func isCacheKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "cache")
}

// isProtectedKey reports whether key holds auth/session data.
func isProtectedKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "user")
}

// Start runs PerformCleanup every CleanupInterval until Stop is called.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.opt.CleanupInterval, m.stop, m.done)
}

// Stop halts the background cleanup and waits for it to exit.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
}

func (m *Manager) loop(every time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.PerformCleanup()
		case <-stop:
			return
		}
	}
}
