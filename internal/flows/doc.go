// Package flows contains pure-function orchestrators for the Engine's
// token and verification operations.
//
// Each flow function (RunInitiate, RunConfirm, RunRefresh, RunAuthenticate)
// accepts a typed dependency struct and returns a classified result without
// side-effects beyond those dependencies. The root package maps failure kinds
// to its public errors.
//
// # Verification workflow
//
// A [Flow] names one code-gated mutation: its key scope, TTL, notification
// and the Check and Apply hooks. RunInitiate stores a fresh code and delivers
// it. RunConfirm looks the entry up, runs Check, claims the entry with an
// atomic compare-and-delete, then runs Apply; a failed Apply puts the entry
// back with its remaining TTL.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the pending store, token managers,
// session manager, limiters, audit and metrics. They do NOT own any of these
// resources. Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import profileauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependencies.
package flows
