// Package password hashes and verifies passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes made with weaker parameters so callers
// can rehash after the next successful login. [Verifier] bounds how many
// derivations run at once.
//
// This package never stores passwords and never logs them.
package password
