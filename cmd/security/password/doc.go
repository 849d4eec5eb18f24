// Package password hashes and verifies back-office staff passwords with Argon2id.
//
// Encoded hashes use the PHC string layout:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Stored hashes are treated as untrusted input: Verify decodes them strictly
// and refuses cost parameters far above the configured ones.
package password
