package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type txContextKey struct{}

func contextWithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) *Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txContextKey{}).(*Tx)
	return tx
}

// Tx is the capability to read and write the cache. It is only valid inside
// the Store.Transaction call that created it and is safe for concurrent use.
type Tx struct {
	store *Store

	// mu guards entries, closed and the file write in Set.
	mu      sync.Mutex
	entries map[string]*CacheEntry
	closed  bool
}

func (tx *Tx) close() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	tx.entries = nil
}

func (tx *Tx) isClosed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.closed
}

// Get returns the value stored under key if a live entry exists.
func (tx *Tx) Get(key string) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidCacheKey
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return nil, false, ErrTxClosed
	}

	entry, ok := tx.entries[key]
	if !ok || !entry.LiveAt(tx.store.now()) {
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Set stores data under key, expiring after ttl, and persists the cache file
// before returning. If persisting fails the previous entry is restored.
func (tx *Tx) Set(key string, data json.RawMessage, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidCacheKey
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return ErrTxClosed
	}

	prev, hadPrev := tx.entries[key]
	tx.entries[key] = NewCacheEntry(key, data, tx.store.now(), ttl)

	if err := tx.store.save(tx.entries); err != nil {
		if hadPrev {
			tx.entries[key] = prev
		} else {
			delete(tx.entries, key)
		}
		return err
	}

	tx.store.logger.Debug().
		Str("operation", "set").
		Str("key", key).
		Dur("ttl", ttl).
		Msg("cache entry stored")
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (tx *Tx) Delete(key string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return ErrTxClosed
	}
	if _, ok := tx.entries[key]; !ok {
		return nil
	}

	prev := tx.entries[key]
	delete(tx.entries, key)
	if err := tx.store.save(tx.entries); err != nil {
		tx.entries[key] = prev
		return err
	}
	return nil
}

// Purge drops expired entries and returns how many were removed.
func (tx *Tx) Purge() (int, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return 0, ErrTxClosed
	}

	now := tx.store.now()
	removed := make(map[string]*CacheEntry)
	for key, entry := range tx.entries {
		if !entry.LiveAt(now) {
			removed[key] = entry
			delete(tx.entries, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := tx.store.save(tx.entries); err != nil {
		for key, entry := range removed {
			tx.entries[key] = entry
		}
		return 0, fmt.Errorf("purging expired entries: %w", err)
	}
	return len(removed), nil
}

// Entries returns copies of all stored entries, live or not, sorted by key.
func (tx *Tx) Entries() ([]CacheEntry, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return nil, ErrTxClosed
	}

	out := make([]CacheEntry, 0, len(tx.entries))
	for _, entry := range tx.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Now returns the store's clock reading.
func (tx *Tx) Now() time.Time {
	return tx.store.now()
}

// Path returns the cache file backing the transaction.
func (tx *Tx) Path() string {
	return tx.store.path
}
