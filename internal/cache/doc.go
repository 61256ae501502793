// Package cache memoizes successful results of idempotent read operations.
//
// Entries are keyed by operation.Operation.CacheKey, so requests with
// equivalent options share an entry. Expired entries are dropped lazily when
// they are read. Concurrent requests for the same key share one underlying
// computation through a singleflight group; joiners receive a copy of the
// leader's result marked Deduplicated.
//
// Mutations do not go through the cache. When one succeeds the orchestrator
// calls InvalidateAfter, which consults a small dependency graph of system
// state to drop only the kinds whose output the mutation can change:
//
//	update, rollback  -> list_generations, dry_run
//	install, remove   -> dry_run
//	repair            -> (nothing)
//
// Each kind carries an epoch counter. Invalidation bumps it, and a computation
// that started under an older epoch is returned to its callers but never
// stored, so a read racing a mutation cannot re-populate a stale entry.
//
// Two Store implementations exist: an in-memory map (default) and a badger
// database for caches that should survive restarts.
package cache
