package password

import (
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/argon2"
)

func countDerivations(t *testing.T) *atomic.Int64 {
	t.Helper()
	var n atomic.Int64
	orig := deriveKey
	deriveKey = func(password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
		n.Add(1)
		return argon2.IDKey(password, salt, time, memory, threads, keyLen)
	}
	t.Cleanup(func() { deriveKey = orig })
	return &n
}

func TestVerifierOutcomes(t *testing.T) {
	h := newFastHasher(t)
	v, err := NewVerifier(h)
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	good := &Account{Hash: hash, Active: true, Verified: true}
	if !v.Check("Secret123!", good) {
		t.Fatal("expected valid credentials to pass")
	}

	cases := map[string]struct {
		plain string
		acct  *Account
	}{
		"wrong password": {"Secret123?", good},
		"unknown user":   {"Secret123!", nil},
		"inactive":       {"Secret123!", &Account{Hash: hash, Active: false, Verified: true}},
		"unverified":     {"Secret123!", &Account{Hash: hash, Active: true, Verified: false}},
		"malformed hash": {"Secret123!", &Account{Hash: "bogus", Active: true, Verified: true}},
		"oversized":      {strings.Repeat("x", DefaultMaxPasswordBytes+1), good},
	}
	for name, tc := range cases {
		if v.Check(tc.plain, tc.acct) {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestVerifierRunsOneDerivationPerAttempt(t *testing.T) {
	h := newFastHasher(t)
	v, err := NewVerifier(h)
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	n := countDerivations(t)
	attempts := []*Account{
		nil,
		{Hash: hash, Active: true, Verified: true},
		{Hash: hash, Active: false, Verified: true},
		{Hash: "bogus"},
	}
	for i, acct := range attempts {
		before := n.Load()
		v.Check("wrong-password", acct)
		if got := n.Load() - before; got != 1 {
			t.Fatalf("attempt %d: expected exactly one derivation, got %d", i, got)
		}
	}
}
