// Package profileauth implements a dual-token session protocol and a set of
// code-confirmed account workflows on top of Redis.
//
// Sessions use two JWT classes signed with independent keys: a short-lived
// access token and a longer-lived refresh token. The engine keeps only a
// digest of the single live refresh token per user, so every refresh is a
// compare-and-swap and a rotated-out token fails with [ErrSessionStale].
// [Engine.Authenticate] is the request authenticator: it admits a valid
// access token and falls back to the refresh token when the access token is
// expired or missing, returning the rotated pair in [AuthResult.Tokens].
//
// Account workflows (email verification, forgot password, login, email,
// phone and password change) share one engine: a six-digit code is stored
// under a per-flow Redis key with a TTL, sent through a notify.Sender, and
// consumed atomically on confirm. A wrong code never mutates state.
//
// # Architecture boundaries
//
// profileauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, pending-code storage and rate limiting
// live under internal/ and are never exported. User persistence is the
// caller's, behind [UserProvider].
//
// # What this package must NOT do
//
//   - Store plaintext passwords, refresh tokens or codes anywhere but the
//     code's own pending entry.
//   - Expose Redis clients or key layouts in its public API.
//   - Import any sub-package that re-imports profileauth.
//
// Engine methods are safe for concurrent use after [Builder.Build].
package profileauth
