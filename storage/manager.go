package storage

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is a decoded envelope: the raw payload plus its metadata.
type Entry struct {
	Data      json.RawMessage
	CreatedAt time.Time
	// TTL is zero when the entry never expires.
	TTL     time.Duration
	Version string
}

// envelope is the persisted JSON shape. createdAt and ttl are milliseconds.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
	TTL       *int64          `json:"ttl,omitempty"`
	Version   string          `json:"version"`
}

// Manager is a versioned, namespaced wrapper over a Backend.
//
// Reads never fail: corrupted, version-skewed, or expired entries are
// deleted and reported as misses. Writes never fail either: a full backend
// triggers an emergency cleanup and one retry, after which the write is
// dropped and logged. All methods are safe for concurrent use.
type Manager struct {
	mu  sync.Mutex
	b   Backend
	opt Options

	// background cleanup lifecycle
	lifeMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// New wraps backend with the given options.
func New(backend Backend, opt Options) *Manager {
	if backend == nil {
		panic("storage: nil backend")
	}
	opt.applyDefaults()
	return &Manager{b: backend, opt: opt}
}

// Version returns the schema version this manager accepts.
func (m *Manager) Version() string { return m.opt.Version }

// Prefix returns the namespace prefix applied to every key.
func (m *Manager) Prefix() string { return m.opt.Prefix }

// SetItem stores data (JSON-encoded) under key. A non-positive ttl means the
// entry never expires. It reports whether the write landed; callers must not
// rely on persistence.
func (m *Manager) SetItem(key string, data any, ttl time.Duration) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		m.opt.Logf("storage: encode %q: %v", key, err)
		m.opt.Metrics.Dropped()
		return false
	}
	return m.PutEntry(key, raw, m.now(), ttl)
}

// PutEntry stores an already encoded payload with an explicit creation time.
// data must be a valid JSON document. Times are kept in whole milliseconds;
// a positive ttl is rounded up so it never persists as "no expiry".
func (m *Manager) PutEntry(key string, data []byte, createdAt time.Time, ttl time.Duration) bool {
	env := envelope{
		Data:      json.RawMessage(data),
		CreatedAt: createdAt.UnixMilli(),
		Version:   m.opt.Version,
	}
	if ttl > 0 {
		ms := int64((ttl + time.Millisecond - 1) / time.Millisecond)
		env.TTL = &ms
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(m.full(key), env)
}

// GetItem decodes the payload stored under key into out and reports
// whether a readable entry was found. A payload that does not decode into
// out is treated as corruption.
func (m *Manager) GetItem(key string, out any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := m.full(key)
	env, ok := m.readLocked(full)
	if !ok {
		return false
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		m.opt.Logf("storage: payload of %q does not decode: %v", key, err)
		m.removeLocked(full)
		return false
	}
	return true
}

// Entry returns the decoded envelope stored under key.
func (m *Manager) Entry(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, ok := m.readLocked(m.full(key))
	if !ok {
		return Entry{}, false
	}
	e := Entry{
		Data:      env.Data,
		CreatedAt: time.UnixMilli(env.CreatedAt),
		Version:   env.Version,
	}
	if env.TTL != nil {
		e.TTL = time.Duration(*env.TTL) * time.Millisecond
	}
	return e, true
}

// RemoveItem deletes key unconditionally.
func (m *Manager) RemoveItem(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(m.full(key))
}

// Keys lists every key under this manager's namespace, prefix stripped,
// in lexical order.
func (m *Manager) Keys() []string {
	return m.KeysWithPrefix("")
}

// KeysWithPrefix lists namespaced keys (prefix stripped) starting with p.
func (m *Manager) KeysWithPrefix(p string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, full := range m.fullKeysLocked() {
		k := strings.TrimPrefix(full, m.opt.Prefix)
		if strings.HasPrefix(k, p) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// RemovePrefix deletes every namespaced key starting with p and returns
// how many were removed. Keys outside p are never touched.
func (m *Manager) RemovePrefix(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, full := range m.fullKeysLocked() {
		if strings.HasPrefix(strings.TrimPrefix(full, m.opt.Prefix), p) {
			m.removeLocked(full)
			n++
		}
	}
	return n
}

// -------------------- internals (mu held) --------------------

func (m *Manager) full(key string) string { return m.opt.Prefix + key }

func (m *Manager) now() time.Time {
	if m.opt.Clock != nil {
		return time.Unix(0, m.opt.Clock.NowUnixNano())
	}
	return time.Now()
}

func (m *Manager) nowMillis() int64 { return m.now().UnixMilli() }

// readLocked loads and validates the envelope at full, deleting it when it
// is corrupted, version-skewed, or expired.
func (m *Manager) readLocked(full string) (envelope, bool) {
	raw, ok, err := m.b.GetItem(full)
	if err != nil {
		m.opt.Logf("storage: read %q: %v", full, err)
		return envelope{}, false
	}
	if !ok {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		m.opt.Logf("storage: corrupted entry %q removed: %v", full, err)
		m.removeLocked(full)
		return envelope{}, false
	}
	if env.Version != m.opt.Version {
		m.opt.Logf("storage: entry %q has version %q, want %q; removed", full, env.Version, m.opt.Version)
		m.removeLocked(full)
		return envelope{}, false
	}
	if expired(env.CreatedAt, env.TTL, m.nowMillis()) {
		m.removeLocked(full)
		return envelope{}, false
	}
	return env, true
}

func (m *Manager) putLocked(full string, env envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		m.opt.Logf("storage: encode envelope %q: %v", full, err)
		m.opt.Metrics.Dropped()
		return false
	}
	value := string(b)

	err = m.b.SetItem(full, value)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		m.opt.Logf("storage: write %q dropped: %v", full, err)
		m.opt.Metrics.Dropped()
		return false
	}

	m.emergencyCleanupLocked(int64(len(full) + len(value)))
	if err := m.b.SetItem(full, value); err != nil {
		m.opt.Logf("storage: write %q dropped after emergency cleanup: %v", full, err)
		m.opt.Metrics.Dropped()
		return false
	}
	return true
}

func (m *Manager) removeLocked(full string) {
	if err := m.b.RemoveItem(full); err != nil {
		m.opt.Logf("storage: remove %q: %v", full, err)
	}
}

// fullKeysLocked returns backend keys under this manager's prefix.
func (m *Manager) fullKeysLocked() []string {
	all, err := m.b.Keys()
	if err != nil {
		m.opt.Logf("storage: list keys: %v", err)
		return nil
	}
	out := all[:0:0]
	for _, k := range all {
		if strings.HasPrefix(k, m.opt.Prefix) {
			out = append(out, k)
		}
	}
	return out
}

// expired applies the shared predicate: with a ttl set, an entry is expired
// once strictly more than ttl has elapsed since creation.
func expired(createdAt int64, ttl *int64, now int64) bool {
	if ttl == nil {
		return false
	}
	return now-createdAt > *ttl
}
