// Package password turns account passwords into stored hashes and back.
//
// [Argon2] writes PHC strings:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// [Legacy] additionally verifies bcrypt hashes imported from older
// learning platforms and flags them for re-hashing. The engine uses
// NeedsUpgrade after a successful login to store a fresh Argon2id hash.
package password
