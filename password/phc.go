package password

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func encodePHC(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, ErrMalformedHash
	}

	out := &phc{}
	if err := out.parseParams(parts[3]); err != nil {
		return nil, err
	}

	var err error
	if out.salt, err = b64.DecodeString(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, ErrMalformedHash
	}
	if out.key, err = b64.DecodeString(parts[5]); err != nil || len(out.key) < int(minKeyLength) {
		return nil, ErrMalformedHash
	}
	return out, nil
}

func (p *phc) parseParams(section string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(section, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return ErrMalformedHash
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return ErrMalformedHash
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return ErrMalformedHash
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return ErrMalformedHash
			}
			p.parallelism = uint8(v)
		default:
			return ErrMalformedHash
		}
	}
	if !seen["m"] || !seen["t"] || !seen["p"] {
		return ErrMalformedHash
	}
	return nil
}
