// Package internal contains helper utilities that are private to profileauth,
// such as verification code generation.
//
// # Sub-packages
//
//   - config: environment configuration for the server binary
//   - flows: the generic verification workflow engine
//   - httpapi: HTTP handlers over the Engine
//   - limiters: fixed-window throttles for verification requests and confirms
//   - logger: slog construction for binaries
//   - observability: request logging, panic recovery and Sentry reporting
//   - rate: Redis-backed login throttling
//   - security: the security posture report
//   - stores: the pending verification entry store
//
// # What this package must NOT do
//
//   - Export types that appear in the public profileauth API.
//   - Be imported by any package outside the profileauth module.
package internal
