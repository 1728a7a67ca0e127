package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gcloud-cache.test.json")
	store, err := NewStore(path, opts...)
	require.NoError(t, err)
	return store
}

func TestCacheEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := NewCacheEntry("projects", json.RawMessage(`[]`), now, time.Hour)

	assert.True(t, entry.LiveAt(now))
	assert.True(t, entry.LiveAt(now.Add(59*time.Minute)))
	assert.False(t, entry.LiveAt(now.Add(time.Hour)), "expiresAt itself is no longer live")
	assert.Equal(t, 30*time.Minute, entry.TimeUntilExpiration(now.Add(30*time.Minute)))
	assert.Equal(t, time.Duration(0), entry.TimeUntilExpiration(now.Add(2*time.Hour)))
	assert.Equal(t, int64(3600), entry.TTLSeconds)

	t.Run("JSON", func(t *testing.T) {
		encoded, err := json.Marshal(entry)
		require.NoError(t, err)

		var decoded CacheEntry
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, entry.Key, decoded.Key)
		assert.True(t, entry.ExpiresAt.Equal(decoded.ExpiresAt))
		assert.JSONEq(t, `[]`, string(decoded.Data))
	})
}

func TestParseTTL(t *testing.T) {
	ttl, err := ParseTTL("86400")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, ttl)

	ttl, err = ParseTTL("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, ttl)

	for _, bad := range []string{"0", "-5", "-1h", "soon"} {
		_, err := ParseTTL(bad)
		assert.ErrorIs(t, err, ErrInvalidTTL, bad)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h30m", FormatDuration(2*time.Hour+30*time.Minute))
	assert.Equal(t, "1d", FormatDuration(DefaultTTL))
	assert.Equal(t, "3d2h", FormatDuration(74*time.Hour))
}

func TestTx_TTLMonotonicity(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, WithClock(clock.Now))

	err := store.Transaction(context.Background(), func(_ context.Context, tx *Tx) error {
		_, err := Set(tx, "instances/p1", []string{"vm-1"}, 10*time.Second)
		require.NoError(t, err)

		v, ok, err := Get[[]string](tx, "instances/p1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"vm-1"}, v)

		clock.Advance(10 * time.Second)
		_, ok, err = Get[[]string](tx, "instances/p1")
		require.NoError(t, err)
		assert.False(t, ok, "entry must be absent once ttl has elapsed")

		// The dead entry is still stored until overwritten.
		entries, err := tx.Entries()
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()

	t.Run("MemoizesProducer", func(t *testing.T) {
		store := newTestStore(t)
		calls := 0
		producer := func() ([]string, error) {
			calls++
			return []string{"p1", "p2"}, nil
		}

		require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
			first, err := GetOrSet(tx, "projects", time.Hour, producer)
			require.NoError(t, err)
			second, err := GetOrSet(tx, "projects", time.Hour, producer)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			return nil
		}))
		assert.Equal(t, 1, calls)
	})

	t.Run("NoNegativeCaching", func(t *testing.T) {
		store := newTestStore(t)
		calls := 0
		failing := func() ([]string, error) {
			calls++
			return nil, errors.New("permission denied")
		}

		require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
			_, err := GetOrSet(tx, "projects", time.Hour, failing)
			require.Error(t, err)

			entries, err := tx.Entries()
			require.NoError(t, err)
			assert.Empty(t, entries)

			_, err = GetOrSet(tx, "projects", time.Hour, failing)
			require.Error(t, err)
			return nil
		}))
		assert.Equal(t, 2, calls, "a failed producer must be retried on the next call")
	})

	t.Run("EmptyValueIsHit", func(t *testing.T) {
		store := newTestStore(t)
		calls := 0
		producer := func() ([]string, error) {
			calls++
			return []string{}, nil
		}

		require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
			for range 3 {
				v, err := GetOrSet(tx, "instances/empty", time.Hour, producer)
				require.NoError(t, err)
				assert.Empty(t, v)
			}
			return nil
		}))
		assert.Equal(t, 1, calls)
	})

	t.Run("UndecodableEntryIsRefetched", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
			require.NoError(t, tx.Set("projects", json.RawMessage(`{"not":"a list"}`), time.Hour))

			v, err := GetOrSet(tx, "projects", time.Hour, func() ([]string, error) {
				return []string{"fresh"}, nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"fresh"}, v)
			return nil
		}))
	})
}

func TestTransaction_Reentrant(t *testing.T) {
	store := newTestStore(t, WithLockTimeout(200*time.Millisecond))
	ctx := context.Background()

	err := store.Transaction(ctx, func(ctx context.Context, outer *Tx) error {
		return store.Transaction(ctx, func(_ context.Context, inner *Tx) error {
			assert.Same(t, outer, inner)
			_, err := Set(inner, "projects", []string{"p1"}, time.Hour)
			return err
		})
	})
	require.NoError(t, err)

	t.Run("WithoutTxContextWaitsForLock", func(t *testing.T) {
		err := store.Transaction(ctx, func(_ context.Context, _ *Tx) error {
			return store.Transaction(context.Background(), func(context.Context, *Tx) error {
				return nil
			})
		})
		assert.ErrorIs(t, err, ErrCacheUnavailable)
	})
}

func TestTransaction_ClosesTx(t *testing.T) {
	store := newTestStore(t)
	var leaked *Tx

	require.NoError(t, store.Transaction(context.Background(), func(_ context.Context, tx *Tx) error {
		leaked = tx
		return nil
	}))

	_, _, err := leaked.Get("projects")
	assert.ErrorIs(t, err, ErrTxClosed)
	assert.ErrorIs(t, leaked.Set("projects", json.RawMessage(`[]`), time.Hour), ErrTxClosed)

	_, statErr := os.Stat(store.lockPath())
	assert.True(t, os.IsNotExist(statErr), "lock file must be released")
}

func TestTransaction_ReleasesLockOnPanic(t *testing.T) {
	store := newTestStore(t, WithLockTimeout(200*time.Millisecond))
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = store.Transaction(ctx, func(context.Context, *Tx) error {
			panic("boom")
		})
	})

	require.NoError(t, store.Transaction(ctx, func(context.Context, *Tx) error { return nil }))
}

func TestTransaction_ErrorKeepsCommittedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	bodyErr := errors.New("selection aborted")

	err := store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		if _, setErr := Set(tx, "projects", []string{"p1"}, time.Hour); setErr != nil {
			return setErr
		}
		return bodyErr
	})
	assert.ErrorIs(t, err, bodyErr)

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		v, ok, getErr := Get[[]string](tx, "projects")
		require.NoError(t, getErr)
		assert.True(t, ok)
		assert.Equal(t, []string{"p1"}, v)
		return nil
	}))
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	first, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		_, setErr := Set(tx, "instances/p1", map[string]string{"name": "vm-1"}, time.Hour)
		return setErr
	}))

	second, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, second.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		v, ok, getErr := Get[map[string]string](tx, "instances/p1")
		require.NoError(t, getErr)
		require.True(t, ok)
		assert.Equal(t, "vm-1", v["name"])
		return nil
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "projects: [p1]\n"},
		{name: "missing version", content: `{"entries":{}}`},
		{name: "future major version", content: `{"version":"2.0.0","entries":{}}`},
		{name: "garbage version", content: `{"version":"one","entries":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0o600))

			called := false
			err := store.Transaction(context.Background(), func(context.Context, *Tx) error {
				called = true
				return nil
			})
			assert.ErrorIs(t, err, ErrCacheCorrupted)
			assert.False(t, called)
		})
	}

	t.Run("compatible minor version", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version":"1.3.0","entries":{}}`), 0o600))
		assert.NoError(t, store.Transaction(context.Background(), func(context.Context, *Tx) error { return nil }))
	})
}

func TestTx_ConcurrentDistinctKeys(t *testing.T) {
	const workers = 50
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("instances/p%d", i)
				if _, err := Set(tx, key, []int{i}, time.Hour); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		return nil
	}))

	reopened, err := NewStore(store.Path())
	require.NoError(t, err)
	require.NoError(t, reopened.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		entries, entriesErr := tx.Entries()
		require.NoError(t, entriesErr)
		assert.Len(t, entries, workers)

		for i := range workers {
			v, ok, getErr := Get[[]int](tx, fmt.Sprintf("instances/p%d", i))
			require.NoError(t, getErr)
			require.True(t, ok, "key %d lost", i)
			assert.Equal(t, []int{i}, v)
		}
		return nil
	}))
}

func TestTx_DeleteAndPurge(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, WithClock(clock.Now))

	require.NoError(t, store.Transaction(context.Background(), func(_ context.Context, tx *Tx) error {
		require.NoError(t, tx.Set("short", json.RawMessage(`1`), time.Minute))
		require.NoError(t, tx.Set("long", json.RawMessage(`2`), time.Hour))
		require.NoError(t, tx.Set("gone", json.RawMessage(`3`), time.Hour))

		require.NoError(t, tx.Delete("gone"))
		require.NoError(t, tx.Delete("never-existed"))

		clock.Advance(2 * time.Minute)
		removed, err := tx.Purge()
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		entries, err := tx.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "long", entries[0].Key)
		return nil
	}))
}

func TestTx_InvalidKey(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Transaction(context.Background(), func(_ context.Context, tx *Tx) error {
		_, _, err := tx.Get("")
		assert.ErrorIs(t, err, ErrInvalidCacheKey)
		assert.ErrorIs(t, tx.Set("", nil, time.Hour), ErrInvalidCacheKey)
		return nil
	}))
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, tx *Tx) error {
		return tx.Set("projects", json.RawMessage(`[]`), time.Hour)
	}))
	require.FileExists(t, store.Path())

	require.NoError(t, store.Clear(ctx))
	assert.NoFileExists(t, store.Path())

	// Clearing a missing file is fine.
	require.NoError(t, store.Clear(ctx))
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(path))
	assert.Regexp(t, `^gcloud-cache\..+\.json$`, filepath.Base(path))
}

func TestRemoveStaleLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "cache.json.lock")

	t.Run("fresh lock is kept", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, []byte("0"), 0o600))
		assert.False(t, removeStaleLock(lockPath, time.Minute))
		assert.FileExists(t, lockPath)
	})

	t.Run("old lock without live owner is removed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, []byte("not-a-pid"), 0o600))
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(lockPath, old, old))

		assert.True(t, removeStaleLock(lockPath, time.Minute))
		assert.NoFileExists(t, lockPath)
	})

	t.Run("old lock held by this process is kept", func(t *testing.T) {
		require.NoError(t, os.WriteFile(lockPath, []byte(fmt.Sprint(os.Getpid())), 0o600))
		old := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(lockPath, old, old))

		assert.False(t, removeStaleLock(lockPath, time.Minute))
		assert.FileExists(t, lockPath)
	})
}

func TestClearStaleLock_KeepsLockTakenByAnotherWaiter(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cache.json.lock")

	require.NoError(t, os.WriteFile(lockPath, []byte("999999999"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))
	stale, err := os.Stat(lockPath)
	require.NoError(t, err)

	// A faster waiter clears the stale lock and takes its own.
	require.NoError(t, os.Remove(lockPath))
	live := []byte(fmt.Sprint(os.Getpid()))
	require.NoError(t, os.WriteFile(lockPath, live, 0o600))

	assert.True(t, clearStaleLock(lockPath, stale))

	got, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, live, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClearStaleLock_RemovesObservedLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "cache.json.lock")

	require.NoError(t, os.WriteFile(lockPath, []byte("999999999"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))
	stale, err := os.Stat(lockPath)
	require.NoError(t, err)

	assert.True(t, clearStaleLock(lockPath, stale))
	assert.NoFileExists(t, lockPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Already gone: the caller should retry.
	assert.True(t, clearStaleLock(lockPath, stale))
}
