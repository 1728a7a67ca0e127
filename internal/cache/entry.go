package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// CacheEntry is a single cached value with its expiry.
//
//nolint:revive // CacheEntry is the canonical name for this exported type.
type CacheEntry struct {
	// Key is the cache key, e.g. "projects" or "instances/<project>".
	Key string `json:"key"`

	// Data is the cached value in JSON form.
	Data json.RawMessage `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// TTLSeconds is informational; ExpiresAt is authoritative.
	TTLSeconds int64 `json:"ttl_seconds"`
}

// NewCacheEntry creates an entry created at now that expires after ttl.
func NewCacheEntry(key string, data json.RawMessage, now time.Time, ttl time.Duration) *CacheEntry {
	return &CacheEntry{
		Key:        key,
		Data:       data,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int64(ttl / time.Second),
	}
}

// LiveAt reports whether the entry is still fresh at t.
func (e *CacheEntry) LiveAt(t time.Time) bool {
	return t.Before(e.ExpiresAt)
}

// Age returns how long before t the entry was created.
func (e *CacheEntry) Age(t time.Time) time.Duration {
	return t.Sub(e.CreatedAt)
}

// TimeUntilExpiration returns the remaining lifetime at t, or 0 if expired.
func (e *CacheEntry) TimeUntilExpiration(t time.Time) time.Duration {
	remaining := e.ExpiresAt.Sub(t)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarshalJSON writes timestamps as RFC3339 with nanoseconds.
func (e *CacheEntry) MarshalJSON() ([]byte, error) {
	type Alias CacheEntry
	return json.Marshal(&struct {
		*Alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		Alias:     (*Alias)(e),
		CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt: e.ExpiresAt.Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON parses the RFC3339 timestamps written by MarshalJSON.
func (e *CacheEntry) UnmarshalJSON(data []byte) error {
	if e == nil {
		return errors.New("cannot unmarshal into nil CacheEntry")
	}
	type Alias CacheEntry
	aux := &struct {
		*Alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, aux.CreatedAt)
	if err != nil {
		return err
	}

	e.ExpiresAt, err = time.Parse(time.RFC3339Nano, aux.ExpiresAt)
	if err != nil {
		return err
	}

	return nil
}
