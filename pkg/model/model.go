// Package model defines the field limits shared by the textconf server and client.
package model

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/NicolasHaas/textconf/pkg/protocol"
)

// ErrInvalidField matches every validation failure returned by this package.
var ErrInvalidField = errors.New("invalid field")

var (
	ErrEmpty        = errors.New("must not be empty")
	ErrWhitespace   = errors.New("must not contain whitespace")
	ErrInvalidChars = errors.New("must contain only printable characters")
	ErrReserved     = fmt.Errorf("%q is reserved", protocol.ServerSource)
)

// TooLongError reports a field that exceeds its limit.
type TooLongError struct {
	Max int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("must not exceed %d characters", e.Max)
}

// fieldError names the offending field and matches both ErrInvalidField and
// the specific cause.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string   { return e.field + " " + e.err.Error() }
func (e *fieldError) Unwrap() []error { return []error{ErrInvalidField, e.err} }

// ValidateUsername checks a client id: 1-19 printable bytes, no whitespace,
// and not the server's own source name.
func ValidateUsername(name string) error {
	if err := validateToken(name, protocol.MaxName); err != nil {
		return &fieldError{field: "username", err: err}
	}
	if name == protocol.ServerSource {
		return &fieldError{field: "username", err: ErrReserved}
	}
	return nil
}

// ValidatePassword checks a password: 1-19 printable bytes, no whitespace.
func ValidatePassword(password string) error {
	if err := validateToken(password, protocol.MaxPassword); err != nil {
		return &fieldError{field: "password", err: err}
	}
	return nil
}

// ValidateSessionID checks a session id: 1-19 printable bytes, no whitespace.
func ValidateSessionID(id string) error {
	if err := validateToken(id, protocol.MaxSessionID); err != nil {
		return &fieldError{field: "session ID", err: err}
	}
	return nil
}

func validateToken(s string, max int) error {
	if len(s) == 0 {
		return ErrEmpty
	}
	if len(s) > max {
		return &TooLongError{Max: max}
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			return ErrWhitespace
		}
		if !unicode.IsPrint(r) {
			return ErrInvalidChars
		}
	}
	return nil
}
