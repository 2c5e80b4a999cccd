// Package security derives the engine's security posture summary from its
// configuration. It has no dependencies on the root package so the rules
// can be tested in isolation.
package security
