/**
 * @description
 * PIN verification for the authentication capability check. PINs are stored
 * as bcrypt hashes; a mismatch and a malformed hash both surface as the same
 * credentials error so callers cannot probe which one occurred.
 */

package app

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or pin")

func comparePin(hash, pin string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPin produces a bcrypt hash for seeding and tests.
func HashPin(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
