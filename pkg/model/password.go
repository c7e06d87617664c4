package model

import "golang.org/x/crypto/bcrypt"

// bcryptRounds mirrors the original service's cost factor.
const bcryptRounds = 12

// HashPassword hashes a plaintext password for storage on an Elector.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptRounds)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plaintext matches the stored bcrypt hash.
func VerifyPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
