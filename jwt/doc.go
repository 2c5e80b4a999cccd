// Package jwt issues and verifies signed access and refresh tokens.
//
// One [Manager] owns one token class: its secret (or key pair) and its TTL.
// The engine builds two managers so that a token minted for one class never
// verifies under the other. [Manager.Parse] separates [ErrTokenExpired] from
// [ErrTokenInvalid]; the former triggers silent refresh, the latter rejects
// the request outright.
package jwt
