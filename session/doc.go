// Package session keeps the single live refresh-token state per user.
//
// The [Manager] stores a SHA-256 digest of the refresh token, never the
// token itself, and compares digests in constant time. [Manager.Exchange]
// validates and rotates in one atomic step so that two concurrent refreshes
// presenting the same token cannot both succeed.
//
// # Architecture boundaries
//
// This package does NOT parse tokens or decide whether a request is
// admitted; that belongs to the Engine. Persistence is delegated to a
// [Backend]: [RedisBackend] here, or a relational backend supplied by the
// caller.
//
// # What this package must NOT do
//
//   - Import profileauth or jwt (no upward imports).
//   - Persist or log plaintext refresh tokens.
package session
