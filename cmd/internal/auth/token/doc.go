// Package token issues and verifies stateless HS256 session tokens.
//
// A token carries the user id (sub), a snapshot of the user's role ids, issue
// and expiry times, the issuer and a random token id (jti). Verification is a
// pure function of the token, the configured secret and the supplied time.
package token
