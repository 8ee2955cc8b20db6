// Package refresh implements rotating opaque refresh tokens.
//
// # Token format
//
// A refresh token is 32 random bytes encoded as unpadded base64url. Only the
// SHA-256 digest of the raw bytes is persisted, so a leaked table cannot be
// replayed.
//
// # Rotation
//
// Every token belongs to a family whose id equals the session id. A token is
// single use: rotating it inserts a successor and marks the presented row
// with replaced_by under a conditional update. Presenting a token that has
// already been replaced is treated as theft and revokes the whole family.
// Concurrent rotations of the same token produce exactly one successor; the
// losers fail and leave the family unchanged.
//
// # What this package must NOT do
//
//   - Open or finalise transactions. Callers pass a Store bound to theirs.
//   - Decide tenant binding. The scope comes from the verified request.
//   - Distinguish unknown, expired and revoked tokens to callers.
package refresh
