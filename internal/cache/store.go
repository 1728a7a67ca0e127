package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
)

// SchemaVersion is written into every cache file. Files whose major version
// differs are rejected as corrupted.
const SchemaVersion = "1.0.0"

const schemaConstraint = "^1.0.0"

// Cache errors.
var (
	ErrInvalidCacheKey  = errors.New("cache key cannot be empty")
	ErrCacheCorrupted   = errors.New("cache file corrupted")
	ErrCacheUnavailable = errors.New("cache file unavailable")
	ErrTxClosed         = errors.New("cache transaction is closed")
)

// fileData is the serialized form of the cache file.
type fileData struct {
	Version string                 `json:"version"`
	Entries map[string]*CacheEntry `json:"entries"`
}

// Store is the file-backed cache. It holds no entries itself; each
// Transaction loads the file and hands out a *Tx for access.
type Store struct {
	path   string
	now    func() time.Time
	lock   lockOptions
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLockTimeout bounds how long Transaction waits for another process.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lock.maxWait = d }
}

// DefaultPath returns the per-user cache file path in the system temp dir.
func DefaultPath() (string, error) {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		return "", errors.New("cannot determine current user for cache file name")
	}
	// Windows usernames may carry a DOMAIN\ prefix.
	name = filepath.Base(filepath.ToSlash(name))
	return filepath.Join(os.TempDir(), fmt.Sprintf("gcloud-cache.%s.json", name)), nil
}

// NewStore creates a Store backed by path. An empty path selects DefaultPath.
// The file is not touched until the first Transaction.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &Store{
		path:   path,
		now:    time.Now,
		lock:   defaultLockOptions(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

// Transaction runs fn with exclusive access to the cache file. The context
// passed to fn carries the transaction: a nested Transaction call on the same
// Store with that context reuses the open Tx. The Tx is closed and the lock
// released on every exit path, including panics. fn's error is returned
// unchanged; writes made before the error are kept.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if tx := txFromContext(ctx); tx != nil && tx.store == s && !tx.isClosed() {
		return fn(ctx, tx)
	}

	unlock, err := acquireFileLock(ctx, s.lockPath(), s.lock)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	defer unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	tx := &Tx{store: s, entries: entries}
	defer tx.close()

	s.logger.Debug().
		Str("operation", "transaction").
		Str("path", s.path).
		Int("entries", len(entries)).
		Msg("cache transaction opened")

	return fn(contextWithTx(ctx, tx), tx)
}

// Clear removes the cache file under the lock.
func (s *Store) Clear(ctx context.Context) error {
	unlock, err := acquireFileLock(ctx, s.lockPath(), s.lock)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing cache file: %w", ErrCacheUnavailable, err)
	}
	return nil
}

// load reads the cache file. A missing file is an empty cache.
func (s *Store) load() (map[string]*CacheEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*CacheEntry), nil
		}
		return nil, fmt.Errorf("%w: reading cache file: %w", ErrCacheUnavailable, err)
	}

	var fd fileData
	if unmarshalErr := json.Unmarshal(data, &fd); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheCorrupted, s.path, unmarshalErr)
	}

	if versionErr := checkSchemaVersion(fd.Version); versionErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCacheCorrupted, s.path, versionErr)
	}

	if fd.Entries == nil {
		fd.Entries = make(map[string]*CacheEntry)
	}
	return fd.Entries, nil
}

// save writes entries atomically through a temp file. Callers hold the file
// lock and the Tx mutex, so the fixed temp name cannot race.
func (s *Store) save(entries map[string]*CacheEntry) error {
	data, err := json.MarshalIndent(fileData{Version: SchemaVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache file: %w", err)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(s.path), 0o750); mkdirErr != nil {
		return fmt.Errorf("%w: creating cache directory: %w", ErrCacheUnavailable, mkdirErr)
	}

	tmpPath := s.path + ".tmp"
	if writeErr := os.WriteFile(tmpPath, data, 0o600); writeErr != nil {
		return fmt.Errorf("%w: writing cache temp file: %w", ErrCacheUnavailable, writeErr)
	}

	if renameErr := os.Rename(tmpPath, s.path); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming cache temp file: %w", ErrCacheUnavailable, renameErr)
	}
	return nil
}

func checkSchemaVersion(v string) error {
	if v == "" {
		return errors.New("missing schema version")
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", v, err)
	}
	constraint, err := semver.NewConstraint(schemaConstraint)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("unsupported schema version %s (want %s)", v, schemaConstraint)
	}
	return nil
}
