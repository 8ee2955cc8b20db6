// Package password hashes credentials with Argon2id and verifies login
// attempts in constant time.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] runs one full Argon2id computation per attempt whether or not
// the account exists, so a caller cannot tell an unknown email from a wrong
// password by timing. [Hasher.NeedsRehash] reports hashes produced with
// weaker parameters so the caller can upgrade them after a successful login.
//
// The package never stores passwords and never logs plaintext or hashes.
package password
