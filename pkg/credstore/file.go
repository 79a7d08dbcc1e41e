package credstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// FileStore keeps credentials in a text file, one "username password" pair
// per line. The file is only ever appended to while the server runs.
type FileStore struct {
	path string

	mu    sync.RWMutex
	byKey map[string]string
}

// OpenFile loads the login file at path. A missing file is an empty store;
// it is created on the first Register.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credstore: file path must not be empty")
	}
	st := &FileStore{path: path, byKey: make(map[string]string)}
	if _, err := st.List(); err != nil {
		return nil, err
	}
	return st, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Lookup returns the cached password for username.
func (s *FileStore) Lookup(username string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.byKey[username]
	return pw, ok, nil
}

// Register appends a new pair to the file.
func (s *FileStore) Register(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[username]; exists {
		return ErrDuplicate
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // path from server config
	if err != nil {
		return fmt.Errorf("credstore: open %s: %w", s.path, err)
	}
	if _, err := fmt.Fprintf(f, "%s %s\n", username, password); err != nil {
		_ = f.Close()
		return fmt.Errorf("credstore: append %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("credstore: close %s: %w", s.path, err)
	}

	s.byKey[username] = password
	return nil
}

// List re-reads the file, refreshes the cache and returns pairs in file order.
// Duplicate usernames keep their first occurrence.
func (s *FileStore) List() ([]Credential, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // path from server config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			data = nil
		} else {
			return nil, fmt.Errorf("credstore: read %s: %w", s.path, err)
		}
	}

	creds, byKey := parseLoginFile(s.path, data)

	s.mu.Lock()
	s.byKey = byKey
	s.mu.Unlock()
	return creds, nil
}

// Close is a no-op; the file is opened per write.
func (s *FileStore) Close() error {
	return nil
}

func parseLoginFile(path string, data []byte) ([]Credential, map[string]string) {
	var creds []Credential
	byKey := make(map[string]string)

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			slog.Warn("skipping malformed login line", "file", path, "line", lineNo)
			continue
		}
		if _, dup := byKey[fields[0]]; dup {
			slog.Warn("skipping duplicate login line", "file", path, "line", lineNo, "user", fields[0])
			continue
		}
		byKey[fields[0]] = fields[1]
		creds = append(creds, Credential{Username: fields[0], Password: fields[1]})
	}
	return creds, byKey
}
