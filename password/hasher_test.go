package password

import (
	"errors"
	"strings"
	"testing"
)

func fastParams() Params {
	return Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newFastHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndCompare(t *testing.T) {
	h := newFastHasher(t)

	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Compare("Secret123!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Compare("Secret123?", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHashLengthBounds(t *testing.T) {
	p := fastParams()
	p.MaxPasswordBytes = 64
	h, err := NewHasher(p)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength for short password, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength for long password, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("b", 64)); err != nil {
		t.Fatalf("expected max-length password to hash: %v", err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	h := newFastHasher(t)
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); err == nil {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
}

func TestCompareMalformedHash(t *testing.T) {
	h := newFastHasher(t)
	hash, err := h.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := []string{
		"not-a-phc-hash",
		strings.Replace(hash, "$v=19$", "$v=18$", 1),
		strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		strings.Replace(hash, "m=8192,", "m=8192,m=8192,", 1),
		strings.Replace(hash, "m=8192", "m=1024", 1),
	}
	for _, encoded := range cases {
		if _, err := h.Compare("version-test", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", encoded, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newFastHasher(t)
	hash, err := weak.Hash("rehash-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if weak.NeedsRehash(hash) {
		t.Fatal("expected current parameters not to need a rehash")
	}

	p := fastParams()
	p.Time = 2
	strong, err := NewHasher(p)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	if !strong.NeedsRehash(hash) {
		t.Fatal("expected weaker hash to need a rehash")
	}
	if !strong.NeedsRehash("garbage") {
		t.Fatal("expected unparseable hash to need a rehash")
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	p := fastParams()
	p.SaltLength = 8
	if _, err := NewHasher(p); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}
