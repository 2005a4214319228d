// Package secrets hashes personal identifiers that must be stored but never
// read back, such as a worker's national ID number.
package secrets

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "upandup/pkg/domain-errors"
)

// Hash returns a bcrypt hash of value after stripping whitespace, so
// "1234 5678 9012" and "123456789012" hash-verify identically.
func Hash(value string) (string, error) {
	normalized := normalize(value)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "value cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(normalized), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "value is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash value")
	}
	return string(hashed), nil
}

// Verify checks value against a hash produced by Hash.
func Verify(value, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalize(value))); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "value does not match")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify value")
	}
	return nil
}

func normalize(value string) string {
	return strings.Join(strings.Fields(value), "")
}
