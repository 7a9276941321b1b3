// Package tradewatch is the bookmark-change monitoring engine of an
// international-trade platform.
//
// Users bookmark trade identifiers (HS codes, cargo references) and opt
// into notification channels. One externally-triggered run scans every
// active bookmark, asks an update detector (an LLM with web search in
// production) whether anything material changed, persists novel
// findings to Postgres, and hands notification work to an
// out-of-process delivery worker via Redis queues.
//
// The engine's guarantees:
//
//   - Single-flight: a Redis SET-NX lock admits at most one run
//     cluster-wide; contention is reported, not retried.
//   - Bounded fan-out: per-bookmark workers run under a semaphore, and
//     detector calls share one RPM-capped rate limiter.
//   - Dedup: a finding with identical (user, target, content) is never
//     persisted twice, and a bookmark deactivated mid-run is re-checked
//     inside the persist transaction.
//   - Ordering: a notification task reaches Redis only after its feed
//     row is durably committed, and its detail hash is written before
//     its id appears on the queue.
//
// A Redis failure after a feed commit leaves a durable feed without a
// task; the engine raises a critical log with the feed id and leaves
// recovery to operations.
package tradewatch
