// Package identity owns back-office staff accounts and the role→permission mapping.
//
// It provides the User/Role/Permission model, credential checks (Argon2id via
// security/password) and two Store implementations: an in-memory store for dev
// and tests, and a PostgreSQL store over pgxpool.
package identity
