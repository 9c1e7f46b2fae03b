package preview

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// fakeClock is a manually advanced clock shared by a store and its test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// setupTestDB opens a fresh SQLite database in a temp dir with the preview schema.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "previews.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	if err = SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	return db
}

// storesUnderTest returns every Store implementation sharing one clock.
func storesUnderTest(t *testing.T) (map[string]interface {
	Store
	Maintainer
}, *fakeClock) {
	t.Helper()
	clock := newFakeClock()

	sqliteStore, err := NewSQLiteStore(setupTestDB(t), clock.Now)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(sqliteStore.Close)

	return map[string]interface {
		Store
		Maintainer
	}{
		"memory": NewMemoryStore(clock.Now),
		"sqlite": sqliteStore,
	}, clock
}
