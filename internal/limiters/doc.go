// Package limiters holds the fixed-window throttles in front of sign-up and
// the verification flows.
//
// Each window is one Redis counter whose expiry is set by the same Lua call
// that creates it. Keys live under pa:su: (sign-up) and pa:vr: / pa:vc:
// (verification requests and confirms). Every limiter is nil-safe; a nil
// limiter allows everything.
//
// Limiters only count. What a refusal means is decided by the caller.
package limiters
