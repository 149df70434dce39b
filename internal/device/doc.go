// Package device implements the in-memory device cache that backs
// every read MatterHub serves.
//
// # Architecture
//
// The Store holds one entry per Matter endpoint, keyed by the
// canonical identifier dev_{node}_{endpoint}. The cache is
// authoritative: HTTP reads, WebSocket fan-out, and control lookups
// all come from memory, and remain available while the Matter backend
// or the database is down.
//
// Persistence is write-behind. Mutations mark the store dirty; a
// background persister (Run) snapshots the full cache and rewrites the
// devices and occupancy_events tables in a single transaction. A flush
// failure is logged and retried with exponential backoff, but it is
// never surfaced to a reader and never blocks an update.
//
// # Concurrency
//
// A map-level RWMutex guards the entry map; each entry carries its own
// mutex for the device and its occupancy history. Updates to different
// devices proceed in parallel, while per-device operations are atomic.
// Every device handed out is a deep copy, so callers can never mutate
// the cache through a returned pointer.
//
// # Occupancy History
//
// Occupancy transitions append to a bounded per-device ring; the
// oldest events are dropped once the configured limit is reached.
// History reads return newest first.
package device
