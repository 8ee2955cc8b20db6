package refresh

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

// FuzzHashToken feeds arbitrary strings to HashToken. Invalid input must be
// rejected without panicking; accepted input must hash its decoded bytes.
func FuzzHashToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")
	f.Add("Gq9e0d6PZ8o1VYpN2sH3kJ4mL5nB6vC7xZ8aS9dF0gA=")
	if token, _, err := newToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		h, err := HashToken(input)
		if err != nil {
			return
		}
		raw, err := base64.RawURLEncoding.DecodeString(input)
		if err != nil {
			t.Fatalf("accepted token does not decode: %v", err)
		}
		if len(raw) != secretSize {
			t.Fatalf("accepted token decodes to %d bytes", len(raw))
		}
		if h != Hash(sha256.Sum256(raw)) {
			t.Fatal("hash does not match decoded bytes")
		}
	})
}

func TestNewTokenRoundTrip(t *testing.T) {
	token, want, err := newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	got, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	if got != want {
		t.Fatal("hash of issued token does not match stored digest")
	}
}
