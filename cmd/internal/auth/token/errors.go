package token

import "errors"

var (
	// ErrExpiredToken is returned when the verification time is at or past the token's expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrMalformedToken covers every other verification failure: bad signature,
	// unexpected algorithm, garbled payload, wrong issuer or missing subject.
	ErrMalformedToken = errors.New("malformed token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid token config")
)
