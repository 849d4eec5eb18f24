// Package api serves the authentication endpoints under /api/v1/auth:
// login (credentials for a signed token), me (current identity) and logout.
//
// It also adapts identity.Store to gate.IdentityResolver so the gate can load
// the caller's current roles and permissions on every request.
package api
