package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"

	"authmsg/internal/domain"
)

const keyCacheFilename = "keycache.json.enc"

var errEmptyKeyID = errors.New("key record without key id")

// FileKeyCache persists key records to a passphrase-sealed file under dir.
type FileKeyCache struct {
	dir        string
	passphrase string
	kdf        kdfParams
	mu         sync.Mutex
}

// NewFileKeyCache returns a FileKeyCache rooted at dir.
func NewFileKeyCache(dir, passphrase string) *FileKeyCache {
	return &FileKeyCache{dir: dir, passphrase: passphrase, kdf: defaultKDFParams()}
}

// Put seals rec into the cache file unless its key id is already present.
func (s *FileKeyCache) Put(rec domain.KeyRecord) error {
	if rec.KeyID == "" {
		return errEmptyKeyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, exists := records[rec.KeyID]; exists {
		return nil
	}
	records[rec.KeyID] = cloneRecord(rec)
	return s.writeLocked(records)
}

// Get opens the cache file and returns the record for id.
func (s *FileKeyCache) Get(id domain.KeyID) (domain.KeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return domain.KeyRecord{}, false, err
	}
	rec, ok := records[id]
	return rec, ok, nil
}

func (s *FileKeyCache) loadLocked() (map[domain.KeyID]domain.KeyRecord, error) {
	records := map[domain.KeyID]domain.KeyRecord{}
	b, err := readFile(filepath.Join(s.dir, keyCacheFilename))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return records, nil
	}
	raw, err := open(s.passphrase, b)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileKeyCache) writeLocked(records map[domain.KeyID]domain.KeyRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	blob, err := seal(s.passphrase, raw, s.kdf)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, keyCacheFilename), blob, 0o600)
}

// Compile-time assertion that FileKeyCache implements domain.KeyCache.
var _ domain.KeyCache = (*FileKeyCache)(nil)
