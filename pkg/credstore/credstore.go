// Package credstore persists username/password pairs for the textconf server.
//
// The server only depends on the Store interface. Three backends exist:
// the plain-text login file (default), SQLite, and an in-memory map used
// by tests.
package credstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicate is returned by Register when the username already exists.
var ErrDuplicate = errors.New("credstore: username already registered")

// Credential is one stored username/password pair.
type Credential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Store is the credential collaborator consumed by the server.
type Store interface {
	// Lookup returns the password stored for username.
	Lookup(username string) (password string, ok bool, err error)
	// Register stores a new pair, or returns ErrDuplicate.
	Register(username, password string) error
	// List returns every stored pair. The server rebuilds its registry from it.
	List() ([]Credential, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open opens the named backend at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendFile, "":
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("credstore: unknown backend %q (valid: %s, %s, %s)", backend, BackendFile, BackendSQLite, BackendMemory)
	}
}
