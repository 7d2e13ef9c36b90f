// Package password hashes short user secrets with Argon2id. goMFA uses it to
// store recovery codes so that a leaked record set does not reveal usable
// codes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters than
// the current configuration.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive hashes.
//   - Import any other goMFA package.
//   - Log plaintext secrets.
package password
