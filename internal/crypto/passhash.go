// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("empty password")

// Credential is a salted one-way password hash.
type Credential struct {
	Hash []byte
	Salt []byte
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewCredential salts and hashes a plaintext password.
func NewCredential(password string) (Credential, error) {
	if password == "" {
		return Credential{}, ErrEmptyPassword
	}
	salt, err := RandBytes(saltLen)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: HashPassword([]byte(password), salt), Salt: salt}, nil
}

// Verify reports whether password matches the credential.
func (c Credential) Verify(password string) bool {
	if len(c.Hash) == 0 {
		return false
	}
	return VerifyPassword([]byte(password), c.Salt, c.Hash)
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
