// Package password wraps bcrypt hashing for stored user credentials.
package password

import "golang.org/x/crypto/bcrypt"

// Hash derives a bcrypt hash from a plain-text password.
func Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare reports whether plain matches the stored hash.
func Compare(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
