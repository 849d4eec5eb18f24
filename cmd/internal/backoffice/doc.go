// Package backoffice is the Go client of the tourdesk API and the session
// layer that admin front-ends (the tourctl CLI among them) build on.
//
// A Session is in one of three states. It starts Loading, moves to
// Authenticated or Unauthenticated once RestoreSession has asked the server
// about the persisted token, and afterwards changes only through Login, Logout
// or a 401 reported by the Client. Transport failures never destroy the
// persisted token.
package backoffice
