// Package refresh rebuilds the whole inventory cache: it force-loads the
// project list, then force-loads every project's instances on a bounded pool
// of workers.
//
// Workers never write progress output themselves. They send Events on a
// channel drained by a single consumer goroutine, so start and completion
// lines from different workers never interleave. Cache writes are serialized
// by the cache transaction; each worker writes its own "instances/<project>"
// key. A failing project is reported and skipped, never aborting the others.
package refresh
