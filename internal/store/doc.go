// Package store provides durable node storage: one SQLite database per
// (class, configuration) pair, managed by a Registry with lazy opens
// and handle caching.
//
// Each database holds a single nodes table whose rows carry the
// schemaless payload as JSON text. Reads that should not create
// storage as a side effect use Registry.Lookup; write paths use
// Registry.GetOrOpen. A database that cannot be opened surfaces
// ErrStorageUnavailable; there is no auto-repair.
package store
