// Package gate is the authentication middleware in front of every protected route.
//
// A request passes the gate only when it carries a bearer token that verifies
// (signature, issuer, expiry) and whose subject resolves to an active user. The
// resolved Identity is attached to the request context; handlers read it with
// FromContext. Capability checks (RequirePermission) run after authentication
// and answer 403 rather than 401.
//
// The gate keeps no per-request state between calls.
package gate
