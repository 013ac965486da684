package password

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("password cannot be empty")
	// ErrInvalidHash is returned for stored hashes that cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Hasher is the credential verifier consumed by the Engine. Implementations
// are stateless and safe for concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Algorithm names accepted by [New].
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// New returns the hasher for algorithm with production parameters. An empty
// algorithm selects Argon2id.
func New(algorithm string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmArgon2id:
		return NewArgon2(DefaultConfig())
	case AlgorithmBcrypt:
		return NewBcrypt(DefaultBcryptCost)
	default:
		return nil, errors.New("unsupported password algorithm: " + algorithm)
	}
}
