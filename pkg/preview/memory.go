package preview

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and is
// mostly useful for tests and single-instance previews.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     Clock
}

// NewMemoryStore returns an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{records: make(map[string]Record), now: clock}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok || !rec.Valid(m.now()) {
		return nil, nil
	}
	rec.Errors = append([]string(nil), rec.Errors...)
	return &rec, nil
}

func (m *MemoryStore) Put(_ context.Context, rec Record, ttl time.Duration) error {
	rec, err := stamp(rec, m.now(), ttl)
	if err != nil {
		return err
	}
	rec.Errors = append([]string(nil), rec.Errors...)
	m.mu.Lock()
	m.records[rec.Key] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context) (int64, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.records {
		if !rec.Valid(now) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st Stats
	for _, rec := range m.records {
		if rec.Valid(now) {
			st.Live++
			st.LiveBytes += int64(len(rec.HTML) + len(rec.CSS))
		} else {
			st.Expired++
		}
	}
	return st, nil
}

func (m *MemoryStore) Purge(_ context.Context, sectionSlug string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.records {
		if sectionSlug == "" || rec.SectionSlug == sectionSlug {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}
