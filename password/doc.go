// Package password hashes passwords with argon2id and verifies stored
// hashes.
//
// New hashes are always PHC strings:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// Verifier also accepts bcrypt ($2a$, $2b$, $2y$) so imported accounts can
// sign in; NeedsRehash then asks the engine to replace the hash with a
// current argon2id one. Length and confirmation rules are the engine's job,
// and this package never sees where hashes are stored.
package password
