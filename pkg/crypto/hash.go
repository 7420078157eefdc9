package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hashing errors.
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost is the bcrypt work factor for operator passwords.
const DefaultCost = 12

// MaxPasswordLength is bcrypt's 72-byte input limit.
const MaxPasswordLength = 72

// HashPassword hashes an operator password with bcrypt and a random salt.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost hashes a password at the given cost, clamped to
// bcrypt's supported range.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a password against its bcrypt hash in constant time.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckPasswordMatch is VerifyPassword as a bool, for use in conditions.
func CheckPasswordMatch(password, hash string) bool {
	return VerifyPassword(password, hash) == nil
}

// GetHashCost extracts the cost from an existing hash, for rehash decisions.
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}

// NeedsRehash reports whether the hash's cost is below desiredCost.
func NeedsRehash(hash string, desiredCost int) bool {
	currentCost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return currentCost < desiredCost
}

// HashKey returns the hex SHA-256 digest of s. Used for ledger payload
// hashes and anywhere a stable content digest is needed.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey derives the deterministic key for a logical action from its
// identifying parts: same parts, same key, across restarts and replays.
func IdempotencyKey(parts ...string) string {
	return HashKey(strings.Join(parts, "|"))
}
