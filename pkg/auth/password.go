package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword salts and hashes a plaintext password for storage in
// models.User.PasswordHash (spec §3: "password is stored as a salted
// one-way hash").
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches hash. Never returns the
// underlying bcrypt error — a malformed hash and a wrong password both mean
// "reject the login attempt".
func CheckPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
