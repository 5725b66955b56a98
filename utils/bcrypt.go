package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrorEmptyPassword = errors.New("password is required")

// HashPassword returns the bcrypt hash stored in users.password.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", ErrorEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func PasswordMatches(hashed string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
