package credstore

import "sync"

// MemoryStore is a map-backed Store. Nothing survives the process.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string
	byKey map[string]string
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]string)}
}

// NewMemoryWith creates a MemoryStore preloaded with creds.
func NewMemoryWith(creds ...Credential) *MemoryStore {
	s := NewMemory()
	for _, c := range creds {
		_ = s.Register(c.Username, c.Password)
	}
	return s
}

// Lookup returns the password stored for username.
func (s *MemoryStore) Lookup(username string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pw, ok := s.byKey[username]
	return pw, ok, nil
}

// Register stores a new pair.
func (s *MemoryStore) Register(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[username]; exists {
		return ErrDuplicate
	}
	s.byKey[username] = password
	s.order = append(s.order, username)
	return nil
}

// List returns every pair in registration order.
func (s *MemoryStore) List() ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds := make([]Credential, 0, len(s.order))
	for _, name := range s.order {
		creds = append(creds, Credential{Username: name, Password: s.byKey[name]})
	}
	return creds, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
