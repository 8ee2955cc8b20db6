package password

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Account is what the Verifier needs to know about a looked-up user.
// A missing user is represented by a nil *Account.
type Account struct {
	Hash     string
	Active   bool
	Verified bool
}

// Verifier checks login attempts so that every outcome costs one Argon2id
// derivation with the configured parameters.
type Verifier struct {
	hasher *Hasher
	dummy  *phc
}

// NewVerifier builds a Verifier whose dummy hash is derived from a random
// secret at startup.
func NewVerifier(h *Hasher) (*Verifier, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("dummy secret: %w", err)
	}
	encoded, err := h.Hash(base64.RawURLEncoding.EncodeToString(secret))
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	dummy, err := decodePHC(encoded)
	if err != nil {
		return nil, err
	}
	return &Verifier{hasher: h, dummy: dummy}, nil
}

// Hasher returns the underlying hasher.
func (v *Verifier) Hasher() *Hasher { return v.hasher }

// Check returns true only when acct exists, is active and verified, and
// plain matches its stored hash. Every other path compares against the
// dummy hash and returns false.
func (v *Verifier) Check(plain string, acct *Account) bool {
	if len(plain) > v.hasher.max {
		v.dummy.matches("")
		return false
	}

	target := v.dummy
	eligible := false
	if acct != nil {
		if parsed, err := decodePHC(acct.Hash); err == nil {
			target = parsed
			eligible = acct.Active && acct.Verified
		}
	}

	matched := target.matches(plain)
	return matched && eligible && target != v.dummy
}
