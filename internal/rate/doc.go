// Package rate holds the sign-in and refresh throttles.
//
// Counters are fixed windows kept in Redis. The first hit of a window sets
// its expiry inside the same Lua call, so a crash between the increment and
// the expiry cannot leave an immortal counter behind.
//
// Keys:
//
//	pa:rl:login:<email>   failed sign-ins per account
//	pa:rl:ip:<ip>         failed sign-ins per client address
//	pa:rl:refresh:<uid>   refresh exchanges per user
package rate
