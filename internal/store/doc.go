// Package store provides the durable per-MPID storage behind the identity
// layer.
//
// # Overview
//
// Store is a small contract: one record per MPID (identities, attributes,
// cookie-sync dates), one product list per MPID, and one process-wide
// GlobalState. Implementations:
//
//   - Memory: maps guarded by a mutex; tests and ephemeral CLIs.
//   - SQLite: modernc.org/sqlite with embedded goose migrations; the default
//     for a single device.
//   - Redis: go-redis; lets several processes share one identity state.
//   - Cached: an LRU of decoded records in front of any Store.
//
// # Contract
//
// Get methods return (nil, nil) when nothing is stored. Values passed in and
// returned out are never retained by reference, so callers may mutate them.
//
// # Concurrency
//
// All implementations are safe for concurrent use.
package store
