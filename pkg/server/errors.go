package server

import (
	"errors"

	"github.com/NicolasHaas/textconf/pkg/model"
)

// Errors reported back to clients as NAK reasons. None of them is fatal.
var (
	ErrDuplicateUsername    = errors.New("the username has already been registered")
	ErrUnknownUser          = errors.New("username not found")
	ErrInvalidCredentials   = errors.New("invalid password")
	ErrAlreadyLoggedIn      = errors.New("already logged in elsewhere")
	ErrSessionExists        = errors.New("a session already exists with this name")
	ErrSessionNotFound      = errors.New("invalid session ID")
	ErrSessionFull          = errors.New("session is full")
	ErrAlreadyInSession     = errors.New("already in a session, leave it first")
	ErrNotLoggedIn          = errors.New("you need to log in first")
	ErrRecipientUnreachable = errors.New("recipient is not online")
	ErrMalformedDirect      = errors.New("expected <recipient> <text>")

	// ErrServerClosed is returned by operations attempted after Shutdown.
	ErrServerClosed = errors.New("server: closed")
)

var clientErrors = []error{
	ErrDuplicateUsername,
	ErrUnknownUser,
	ErrInvalidCredentials,
	ErrAlreadyLoggedIn,
	ErrSessionExists,
	ErrSessionNotFound,
	ErrSessionFull,
	ErrAlreadyInSession,
	ErrNotLoggedIn,
	ErrRecipientUnreachable,
	ErrMalformedDirect,
	model.ErrInvalidField,
}

// reason renders err for a NAK payload. Internal failures are not echoed.
func reason(err error) string {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return err.Error()
		}
	}
	return "internal server error"
}
