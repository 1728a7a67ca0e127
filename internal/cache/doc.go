// Package cache provides the persistent, file-backed TTL cache used to
// memoize remote inventory calls.
//
// The whole cache is one JSON file per operating user (by default
// $TMPDIR/gcloud-cache.<user>.json). Access is only possible through a *Tx
// obtained inside Store.Transaction:
//   - a lockfile next to the cache file serializes separate geco processes
//   - every Tx.Set is a locked read-modify-write followed by an atomic
//     temp-file rename, so concurrent writers inside one process never lose
//     updates and committed entries survive interruption
//   - nested Transaction calls that carry the active Tx in their context
//     reuse it instead of re-acquiring the file lock
//
// An entry is live while now < ExpiresAt. Presence and freshness alone decide
// a hit: an empty list is a valid cached value.
package cache
