package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Get decodes the live value stored under key into T.
func Get[T any](tx *Tx, key string) (T, bool, error) {
	var zero T

	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return zero, false, err
	}

	var v T
	if unmarshalErr := json.Unmarshal(raw, &v); unmarshalErr != nil {
		return zero, false, fmt.Errorf("%w: decoding %q: %w", ErrCacheCorrupted, key, unmarshalErr)
	}
	return v, true, nil
}

// Set encodes value, stores it under key for ttl and returns value.
func Set[T any](tx *Tx, key string, value T, ttl time.Duration) (T, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("encoding %q: %w", key, err)
	}
	if setErr := tx.Set(key, raw, ttl); setErr != nil {
		var zero T
		return zero, setErr
	}
	return value, nil
}

// GetOrSet returns the live value under key, or calls producer and stores its
// result. A producer error is returned as-is and nothing is cached, so the
// next call runs producer again. An entry that no longer decodes into T is
// treated as a miss and overwritten.
func GetOrSet[T any](tx *Tx, key string, ttl time.Duration, producer func() (T, error)) (T, error) {
	var zero T

	raw, ok, err := tx.Get(key)
	if err != nil {
		return zero, err
	}
	if ok {
		var v T
		if unmarshalErr := json.Unmarshal(raw, &v); unmarshalErr == nil {
			return v, nil
		}
		tx.store.logger.Warn().
			Str("operation", "get_or_set").
			Str("key", key).
			Msg("cached value does not decode, fetching again")
	}

	produced, err := producer()
	if err != nil {
		return zero, err
	}
	return Set(tx, key, produced, ttl)
}
