// Package crypto hashes and verifies resource account passwords with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams are tuned for interactive server-side logins.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("empty password")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Derive returns the Argon2id key of password for salt.
func (p Params) Derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Hash derives a key from password under a fresh random salt.
func (p Params) Hash(password string) (hash, salt []byte, err error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}
	if salt, err = RandBytes(p.SaltLen); err != nil {
		return nil, nil, err
	}
	return p.Derive([]byte(password), salt), salt, nil
}

// Verify reports whether password matches the stored hash and salt in constant time.
func (p Params) Verify(password string, salt, expected []byte) bool {
	got := p.Derive([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
