package store

import (
	"sync"

	"authmsg/internal/domain"
)

// MemoryKeyCache keeps key records for the life of the process.
type MemoryKeyCache struct {
	mu      sync.RWMutex
	records map[domain.KeyID]domain.KeyRecord
}

// NewMemoryKeyCache returns an empty MemoryKeyCache.
func NewMemoryKeyCache() *MemoryKeyCache {
	return &MemoryKeyCache{records: make(map[domain.KeyID]domain.KeyRecord)}
}

// Put inserts rec unless a record for rec.KeyID already exists.
func (c *MemoryKeyCache) Put(rec domain.KeyRecord) error {
	if rec.KeyID == "" {
		return errEmptyKeyID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[rec.KeyID]; exists {
		return nil
	}
	c.records[rec.KeyID] = cloneRecord(rec)
	return nil
}

// Get returns the record for id and whether it was present.
func (c *MemoryKeyCache) Get(id domain.KeyID) (domain.KeyRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return domain.KeyRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func cloneRecord(rec domain.KeyRecord) domain.KeyRecord {
	rec.Private = append([]byte(nil), rec.Private...)
	rec.Public = append([]byte(nil), rec.Public...)
	return rec
}

// Compile-time assertion that MemoryKeyCache implements domain.KeyCache.
var _ domain.KeyCache = (*MemoryKeyCache)(nil)
