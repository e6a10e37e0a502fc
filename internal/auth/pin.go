package auth

import (
	"fmt"

	"github.com/example/marketplace-ledger/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPIN = fmt.Errorf("%w: PIN must be 4 to 6 digits", apperr.ErrInvalidInput)

const (
	bcryptCost   = 12
	minPINLength = 4
	maxPINLength = 6
)

func validPIN(pin string) bool {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// HashPIN hashes a withdrawal PIN using bcrypt
func HashPIN(pin string) (string, error) {
	if !validPIN(pin) {
		return "", ErrInvalidPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPIN compares a PIN with its hash
func CheckPIN(pin, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	return err == nil
}
