// Package streamsvc manages the lifecycle of ingestion streams. It caches at
// most one live stream handle per table key, creates streams on demand under
// a per-key lock, recreates them when they are no longer healthy, and tears
// everything down on shutdown.
//
// The package never opens transport connections itself; stream creation is
// delegated to a zerobus.Provider. Ingestion against a cached handle is
// lock-free with respect to creation: a submit on table A is never delayed by
// a stream being built for table B.
package streamsvc
