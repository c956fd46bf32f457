// Package password implements the password policy engine and Argon2id hashing.
//
// # Policy
//
// [Validate] scores a candidate against a [Policy] and returns a [Strength]
// with an ordered feedback list. It performs no I/O. [CheckReuse] and
// [Argon2.CheckReuse] reject a password found among the most recent
// history entries; the Engine keeps history as argon2id hashes and uses the
// latter.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGuard package.
//   - Log plaintext passwords.
package password
