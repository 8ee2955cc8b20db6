// Package jwt issues and verifies HS256 access tokens with active/previous key
// rotation and a mandatory claim set.
//
// Verification is a pure function over key material and the clock: every
// failure collapses into [ErrInvalidToken] so callers cannot leak which check
// failed. Revocation (blacklisting) is the caller's concern.
package jwt
