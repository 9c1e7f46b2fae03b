package preview

import (
	"context"
	"time"

	"go.trai.ch/zerr"
)

var (
	// ErrInvalidTTL is returned by Put when the ttl is not positive.
	ErrInvalidTTL = zerr.New("ttl must be positive")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = zerr.New("preview store unavailable")
)

// Record is one rendered preview as persisted in the store.
type Record struct {
	Key          string    `json:"cache_key"`
	SectionSlug  string    `json:"section_slug"`
	PresetSlug   string    `json:"preset_slug,omitempty"`
	HTML         string    `json:"html"`
	CSS          string    `json:"css,omitempty"`
	Errors       []string  `json:"errors,omitempty"`
	RenderTimeMs int64     `json:"render_time_ms"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the record has not yet expired at now.
func (r *Record) Valid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Store maps cache keys to rendered previews.
//
// Get returns nil, nil when the key is unknown or the stored record has
// expired, even if the row is still physically present. Put stamps the record
// with CreatedAt = now and ExpiresAt = now + ttl, where ttl is at least one
// millisecond; a second Put for the same key
// replaces the first.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, rec Record, ttl time.Duration) error
}

// Stats describes the contents of a store. Expired rows are reported
// separately and never count towards the live totals.
type Stats struct {
	Live      int64 `json:"live"`
	Expired   int64 `json:"expired"`
	LiveBytes int64 `json:"live_bytes"`
}

// Maintainer is implemented by stores that keep expired rows until swept.
type Maintainer interface {
	// Sweep deletes expired records and returns how many were removed.
	Sweep(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	// Purge deletes every record, optionally restricted to one section.
	Purge(ctx context.Context, sectionSlug string) (int64, error)
}

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

func stamp(rec Record, now time.Time, ttl time.Duration) (Record, error) {
	if ttl <= 0 {
		return rec, zerr.With(zerr.Wrap(ErrInvalidTTL, "cannot store preview"), "ttl", ttl.String())
	}
	// Rows keep millisecond timestamps; a shorter ttl would expire on creation.
	ttl = max(ttl, time.Millisecond)
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	return rec, nil
}
