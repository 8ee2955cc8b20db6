package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// MinPasswordBytes is the shortest plaintext Hash accepts.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes bounds the Argon2 input when Params leaves it unset.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordLength is returned for plaintexts outside the accepted byte range.
	ErrPasswordLength = errors.New("password length out of range")
	// ErrMalformedHash is returned when a stored hash is not a supported PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Params are the Argon2id cost parameters applied to new hashes.
type Params struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultParams returns the production cost parameters.
func DefaultParams() Params {
	return Params{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Validate checks the parameters against the package minimums.
func (p Params) Validate() error {
	switch {
	case p.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case p.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case p.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case p.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Hasher produces and checks Argon2id PHC hashes. It is safe for concurrent use.
type Hasher struct {
	params Params
	max    int
}

// NewHasher validates p and returns a Hasher.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	max := p.MaxPasswordBytes
	if max == 0 {
		max = DefaultMaxPasswordBytes
	}
	return &Hasher{params: p, max: max}, nil
}

// Params returns the parameters new hashes are produced with.
func (h *Hasher) Params() Params { return h.params }

// Hash derives a fresh salted hash. Plaintext bytes are used as given, with
// no Unicode normalisation.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) < MinPasswordBytes || len(plain) > h.max {
		return "", ErrPasswordLength
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := deriveKey([]byte(plain), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return encodePHC(phc{
		memory:      h.params.Memory,
		time:        h.params.Time,
		parallelism: h.params.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Compare reports whether plain matches encoded. Oversized input is rejected
// before any key derivation runs.
func (h *Hasher) Compare(plain, encoded string) (bool, error) {
	if len(plain) > h.max {
		return false, ErrPasswordLength
	}
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return parsed.matches(plain), nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than h. Unparseable hashes always need a rehash.
func (h *Hasher) NeedsRehash(encoded string) bool {
	parsed, err := decodePHC(encoded)
	if err != nil {
		return true
	}
	return h.params.Memory > parsed.memory ||
		h.params.Time > parsed.time ||
		h.params.Parallelism > parsed.parallelism ||
		h.params.KeyLength != uint32(len(parsed.key))
}

func (p *phc) matches(plain string) bool {
	computed := deriveKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1
}

var (
	b64       = base64.StdEncoding
	deriveKey = argon2.IDKey
)
