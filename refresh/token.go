package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const secretSize = 32

var errMalformedToken = errors.New("malformed refresh token")

// Hash is the SHA-256 digest of a refresh token's raw bytes.
type Hash [sha256.Size]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// newToken returns a fresh opaque token and its digest.
func newToken() (string, Hash, error) {
	var secret [secretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", Hash{}, err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), sha256.Sum256(secret[:]), nil
}

// HashToken decodes a presented token and returns its digest.
func HashToken(token string) (Hash, error) {
	if len(token) != base64.RawURLEncoding.EncodedLen(secretSize) {
		return Hash{}, errMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != secretSize {
		return Hash{}, errMalformedToken
	}
	return sha256.Sum256(raw), nil
}
