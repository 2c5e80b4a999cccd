// Package middleware adapts profileauth.Engine.Authenticate to net/http.
//
// [Guard] reads the access token from the access cookie, falling back to an
// Authorization: Bearer header, and the refresh token from the refresh cookie
// only. When the engine rotates the pair during a silent refresh, Guard
// writes both cookies on the response and rewrites the in-flight request so
// downstream handlers see the new access token.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly. Every decision is the engine's.
//   - Access Redis.
package middleware
