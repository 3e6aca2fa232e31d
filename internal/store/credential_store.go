package store

import (
	"sync"

	"authmsg/internal/domain"
)

// CredentialStore holds the current access credential and fronts the key
// cache shared by every identity of the session.
//
// The credential is replaced wholesale by SetCredential and never mutated in
// place. Key records follow the insert-if-absent rule of the backing cache.
type CredentialStore struct {
	mu      sync.RWMutex
	current domain.AccessCredential
	hasCred bool

	keys domain.KeyCache
}

// NewCredentialStore returns a CredentialStore over keys. A nil cache selects
// a fresh MemoryKeyCache.
func NewCredentialStore(keys domain.KeyCache) *CredentialStore {
	if keys == nil {
		keys = NewMemoryKeyCache()
	}
	return &CredentialStore{keys: keys}
}

// SetCredential replaces the current access credential.
func (s *CredentialStore) SetCredential(c domain.AccessCredential) {
	c.Scopes = append([]string(nil), c.Scopes...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
	s.hasCred = true
}

// Credential returns the current access credential, if one was stored.
func (s *CredentialStore) Credential() (domain.AccessCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.current
	c.Scopes = append([]string(nil), c.Scopes...)
	return c, s.hasCred
}

// Put inserts rec into the key cache unless its key id is already present.
func (s *CredentialStore) Put(rec domain.KeyRecord) error { return s.keys.Put(rec) }

// Get looks a key record up in the key cache.
func (s *CredentialStore) Get(id domain.KeyID) (domain.KeyRecord, bool, error) {
	return s.keys.Get(id)
}

// Compile-time assertion that CredentialStore implements domain.KeyCache.
var _ domain.KeyCache = (*CredentialStore)(nil)
