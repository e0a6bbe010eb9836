package identity

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/gatehouse-cms/gatehouse/internal/shared"
)

// argon2id parameters, per the RFC 9106 low-memory recommendation.
const (
	hashTime    = 3
	hashMemory  = 64 * 1024
	hashThreads = 4
	hashKeyLen  = 32
)

// Hasher derives argon2id password hashes from a fixed, externally configured
// salt source.
type Hasher struct {
	salt []byte
}

// NewHasher decodes the base64 salt source. A salt that fails to decode or is
// shorter than 8 bytes is a configuration error, not a credential mismatch.
func NewHasher(saltB64 string) (*Hasher, error) {
	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("identity: decode salt: %v: %w", err, shared.ErrPasswordHash)
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("identity: salt too short: %w", shared.ErrPasswordHash)
	}
	return &Hasher{salt: salt}, nil
}

// Hash derives the stored form of a password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("identity: empty password: %w", shared.ErrPasswordHash)
	}
	key := argon2.IDKey([]byte(password), h.salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	return base64.RawStdEncoding.EncodeToString(key), nil
}

// Verify compares a candidate password against a stored hash in constant
// time. A mismatch is shared.ErrInvalidCredentials; a hash that cannot be
// decoded is shared.ErrPasswordHash.
func (h *Hasher) Verify(password, encoded string) error {
	stored, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("identity: decode stored hash: %v: %w", err, shared.ErrPasswordHash)
	}
	key := argon2.IDKey([]byte(password), h.salt, hashTime, hashMemory, hashThreads, hashKeyLen)
	if subtle.ConstantTimeCompare(stored, key) != 1 {
		return shared.ErrInvalidCredentials
	}
	return nil
}
