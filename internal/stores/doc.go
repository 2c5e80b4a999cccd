// Package stores provides the Redis-backed store of pending verification
// entries used by every code-gated identity mutation.
//
// # Design
//
// An entry lives at "<flow>:<scope>" (optionally behind a key prefix) with a
// finite TTL. The value is the code, a newline, then the JSON payload of the
// flow. Lookup reads value and remaining TTL in one script call and reports
// a tagged result. Consume is a Lua compare-and-delete, so of several
// concurrent confirms presenting the right code exactly one claims the entry.
// Codes are compared in constant time on the Go side.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for pending entries.
// It does NOT generate codes, send notifications, throttle callers or mutate
// users. Those belong to internal/flows and the Engine.
//
// # What this package must NOT do
//
//   - Import profileauth or any sibling internal package.
//   - Log codes or payloads.
//   - Store an entry without a TTL.
package stores
