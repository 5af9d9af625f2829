package crypto

import "golang.org/x/crypto/bcrypt"

// bcryptCost is the bcrypt work factor for password hashing.
const bcryptCost = 12

// HashPassword returns the bcrypt digest of plaintext. The salt is generated
// per call and embedded in the digest; it is never stored separately.
func HashPassword(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyPassword reports whether plaintext matches the stored bcrypt digest.
// A wrong password or a malformed digest both return false.
func VerifyPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
