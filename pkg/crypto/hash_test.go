package crypto

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"unicode password", "пароль123"},
		{"long password", strings.Repeat("a", 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if err != nil {
				t.Fatalf("HashPassword failed: %v", err)
			}

			if hash == "" {
				t.Error("Hash should not be empty")
			}

			if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
				t.Errorf("Hash should start with bcrypt prefix, got: %s", hash[:10])
			}

			if hash == tt.password {
				t.Error("Hash should not equal password")
			}
		})
	}
}

func TestHashPasswordEmptyError(t *testing.T) {
	_, err := HashPassword("")
	if err != ErrEmptyPassword {
		t.Errorf("HashPassword empty: got error %v, want %v", err, ErrEmptyPassword)
	}
}

func TestHashPasswordTooLong(t *testing.T) {
	longPassword := strings.Repeat("a", 73)
	_, err := HashPassword(longPassword)
	if err != ErrPasswordTooLong {
		t.Errorf("HashPassword too long: got error %v, want %v", err, ErrPasswordTooLong)
	}
}

func TestHashPasswordDifferentHashes(t *testing.T) {
	password := "samepassword"

	hash1, _ := HashPassword(password)
	hash2, _ := HashPassword(password)

	if hash1 == hash2 {
		t.Error("Two hashes of the same password should be different (different salts)")
	}
}

func TestHashPasswordWithCost(t *testing.T) {
	password := "testpassword"

	tests := []struct {
		name         string
		cost         int
		expectedCost int
	}{
		{"min cost", bcrypt.MinCost, bcrypt.MinCost},
		{"default cost", DefaultCost, DefaultCost},
		{"below min - clamped", 0, bcrypt.MinCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPasswordWithCost(password, tt.cost)
			if err != nil {
				t.Fatalf("HashPasswordWithCost failed: %v", err)
			}

			actualCost, _ := GetHashCost(hash)
			if actualCost != tt.expectedCost {
				t.Errorf("Got cost %d, want %d", actualCost, tt.expectedCost)
			}
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "correctpassword"
	hash, _ := HashPassword(password)

	err := VerifyPassword(password, hash)
	if err != nil {
		t.Errorf("VerifyPassword with correct password: got error %v, want nil", err)
	}

	err = VerifyPassword("wrongpassword", hash)
	if err != ErrPasswordMismatch {
		t.Errorf("VerifyPassword with wrong password: got error %v, want %v", err, ErrPasswordMismatch)
	}
}

func TestVerifyPasswordEmptyInputs(t *testing.T) {
	hash, _ := HashPassword("password")

	err := VerifyPassword("", hash)
	if err != ErrEmptyPassword {
		t.Errorf("VerifyPassword with empty password: got error %v, want %v", err, ErrEmptyPassword)
	}

	err = VerifyPassword("password", "")
	if err != ErrInvalidHash {
		t.Errorf("VerifyPassword with empty hash: got error %v, want %v", err, ErrInvalidHash)
	}
}

func TestVerifyPasswordInvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"random string", "notahash"},
		{"truncated hash", "$2a$12$abc"},
		{"wrong format", "sha256:abcdef123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword("password", tt.hash)
			if err != ErrInvalidHash {
				t.Errorf("VerifyPassword with invalid hash: got error %v, want %v", err, ErrInvalidHash)
			}
		})
	}
}

func TestCheckPasswordMatch(t *testing.T) {
	password := "testpassword"
	hash, _ := HashPassword(password)

	if !CheckPasswordMatch(password, hash) {
		t.Error("CheckPasswordMatch should return true for correct password")
	}

	if CheckPasswordMatch("wrongpassword", hash) {
		t.Error("CheckPasswordMatch should return false for wrong password")
	}

	if CheckPasswordMatch("", hash) {
		t.Error("CheckPasswordMatch should return false for empty password")
	}
}

func TestGetHashCost(t *testing.T) {
	hash, _ := HashPasswordWithCost("password", 10)
	cost, err := GetHashCost(hash)
	if err != nil {
		t.Fatalf("GetHashCost failed: %v", err)
	}
	if cost != 10 {
		t.Errorf("GetHashCost: got %d, want 10", cost)
	}

	_, err = GetHashCost("")
	if err != ErrInvalidHash {
		t.Errorf("GetHashCost empty: got error %v, want %v", err, ErrInvalidHash)
	}

	_, err = GetHashCost("invalid")
	if err != ErrInvalidHash {
		t.Errorf("GetHashCost invalid: got error %v, want %v", err, ErrInvalidHash)
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, _ := HashPasswordWithCost("password", 10)

	if NeedsRehash(hash, 10) {
		t.Error("NeedsRehash should return false when cost equals desired")
	}
	if NeedsRehash(hash, 8) {
		t.Error("NeedsRehash should return false when cost is higher than desired")
	}

	if !NeedsRehash(hash, 12) {
		t.Error("NeedsRehash should return true when cost is lower than desired")
	}

	if !NeedsRehash("invalid", 10) {
		t.Error("NeedsRehash should return true for invalid hash")
	}
}

func TestDefaultCost(t *testing.T) {
	if DefaultCost < 10 {
		t.Errorf("DefaultCost %d is too low for production use", DefaultCost)
	}
	if DefaultCost > 14 {
		t.Errorf("DefaultCost %d may cause performance issues", DefaultCost)
	}
}

func TestHashPasswordWithCostEmpty(t *testing.T) {
	_, err := HashPasswordWithCost("", 10)
	if err != ErrEmptyPassword {
		t.Errorf("HashPasswordWithCost empty: got error %v, want %v", err, ErrEmptyPassword)
	}
}

func TestHashPasswordWithCostTooLong(t *testing.T) {
	longPassword := strings.Repeat("a", 73)
	_, err := HashPasswordWithCost(longPassword, 10)
	if err != ErrPasswordTooLong {
		t.Errorf("HashPasswordWithCost too long: got error %v, want %v", err, ErrPasswordTooLong)
	}
}

func BenchmarkHashPassword(b *testing.B) {
	password := "benchmarkpassword123"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword(password)
	}
}

func BenchmarkHashPasswordMinCost(b *testing.B) {
	password := "benchmarkpassword123"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = HashPasswordWithCost(password, bcrypt.MinCost)
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	password := "benchmarkpassword123"
	hash, _ := HashPasswordWithCost(password, bcrypt.MinCost)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = VerifyPassword(password, hash)
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	a := HashKey("session|bar|NIFTY|23450|CE|1")
	b := HashKey("session|bar|NIFTY|23450|CE|1")
	if a != b {
		t.Error("HashKey should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("HashKey length = %d, want 64 hex chars", len(a))
	}
	if a == HashKey("session|bar|NIFTY|23450|PE|1") {
		t.Error("different inputs should not collide")
	}
}

func TestIdempotencyKey(t *testing.T) {
	k1 := IdempotencyKey("sess", "intent-1", "0")
	k2 := IdempotencyKey("sess", "intent-1", "0")
	if k1 != k2 {
		t.Error("IdempotencyKey should be stable across calls")
	}
	if k1 == IdempotencyKey("sess", "intent-1", "1") {
		t.Error("attempt index must change the key")
	}
	// The joined form must match HashKey over the pipe-separated parts.
	if k1 != HashKey("sess|intent-1|0") {
		t.Error("IdempotencyKey should match HashKey of joined parts")
	}
}
