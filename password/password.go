// Package password hashes and verifies user passwords with argon2id.
//
// Hashes are stored in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//
// The server-wide pepper is prepended to the plaintext before hashing. An
// empty stored hash marks an expired password and never verifies.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/xraph/rvoc"
)

// ErrMalformedHash is returned for stored hashes that cannot be parsed.
var ErrMalformedHash = errors.New("password: malformed hash")

// Params are the argon2id cost parameters.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes with fixed parameters and pepper.
type Hasher struct {
	params Params
	pepper []byte
}

// NewHasher creates a Hasher.
func NewHasher(params Params, pepper string) *Hasher {
	return &Hasher{params: params, pepper: []byte(pepper)}
}

// FromConfig creates a Hasher from the password configuration.
func FromConfig(c rvoc.PasswordConfig) *Hasher {
	return NewHasher(Params{
		MemoryKiB:   c.Argon2.MemoryKiB,
		Iterations:  c.Argon2.Iterations,
		Parallelism: c.Argon2.Parallelism,
		SaltLength:  c.Argon2.SaltLength,
		KeyLength:   c.Argon2.KeyLength,
	}, c.Pepper)
}

func (h *Hasher) key(plaintext string, salt []byte, p Params) []byte {
	input := make([]byte, 0, len(h.pepper)+len(plaintext))
	input = append(input, h.pepper...)
	input = append(input, plaintext...)
	return argon2.IDKey(input, salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
}

// Hash returns the encoded hash of plaintext with a fresh salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	sum := h.key(plaintext, salt, h.params)
	return encode(h.params, salt, sum), nil
}

// Result is the outcome of Verify.
type Result struct {
	Matches bool
	// RehashRecommended is set on a match when the stored hash used other
	// parameters than the Hasher's.
	RehashRecommended bool
}

// Verify checks plaintext against an encoded hash.
func (h *Hasher) Verify(plaintext, encoded string) (Result, error) {
	if encoded == "" {
		return Result{}, nil
	}
	p, salt, sum, err := decode(encoded)
	if err != nil {
		return Result{}, err
	}
	got := h.key(plaintext, salt, p)
	if subtle.ConstantTimeCompare(got, sum) != 1 {
		return Result{}, nil
	}
	return Result{Matches: true, RehashRecommended: p != h.params}, nil
}

var b64 = base64.RawStdEncoding

func encode(p Params, salt, sum []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(sum))
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	sum, err := b64.DecodeString(parts[5])
	if err != nil || len(sum) == 0 {
		return p, nil, nil, fmt.Errorf("%w: hash", ErrMalformedHash)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(sum))
	return p, salt, sum, nil
}
