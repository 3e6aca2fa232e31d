package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"authmsg/internal/domain"
)

var errEmptyRedemptionID = errors.New("redemption id is required")

// MemoryLedger tracks token redemptions in memory.
type MemoryLedger struct {
	mu       sync.Mutex
	pending  map[string]time.Time
	redeemed map[string]time.Time
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		pending:  map[string]time.Time{},
		redeemed: map[string]time.Time{},
	}
}

// Reserve claims id unless it is pending or redeemed.
func (l *MemoryLedger) Reserve(id string, at time.Time) (bool, error) {
	if id == "" {
		return false, errEmptyRedemptionID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.redeemed[id]; ok {
		return false, nil
	}
	if _, ok := l.pending[id]; ok {
		return false, nil
	}
	l.pending[id] = at.UTC()
	return true, nil
}

// Confirm records id as redeemed for good.
func (l *MemoryLedger) Confirm(id string, at time.Time) error {
	if id == "" {
		return errEmptyRedemptionID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	l.redeemed[id] = at.UTC()
	return nil
}

// Release drops a pending reservation; redeemed ids stay redeemed.
func (l *MemoryLedger) Release(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	return nil
}

// FileLedger keeps pending reservations in memory and persists confirmed
// redemptions to a JSON file so they survive restarts.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	pending map[string]time.Time
	seen    map[string]time.Time
}

type ledgerPayload struct {
	Seen map[string]time.Time `json:"seen"`
}

// NewFileLedger returns a FileLedger persisting to path. Call Bootstrap before use.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{
		path:    path,
		pending: map[string]time.Time{},
		seen:    map[string]time.Time{},
	}
}

// Bootstrap loads previously confirmed redemptions. A missing file is empty.
func (l *FileLedger) Bootstrap() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(l.path) == "" {
		return errors.New("ledger path is required")
	}
	var payload ledgerPayload
	if err := readJSON(l.path, &payload); err != nil {
		return err
	}
	if payload.Seen == nil {
		payload.Seen = map[string]time.Time{}
	}
	l.seen = payload.Seen
	return nil
}

// Reserve claims id unless it is pending or already persisted as redeemed.
func (l *FileLedger) Reserve(id string, at time.Time) (bool, error) {
	if id == "" {
		return false, errEmptyRedemptionID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[id]; ok {
		return false, nil
	}
	if _, ok := l.pending[id]; ok {
		return false, nil
	}
	l.pending[id] = at.UTC()
	return true, nil
}

// Confirm persists id as redeemed.
func (l *FileLedger) Confirm(id string, at time.Time) error {
	if id == "" {
		return errEmptyRedemptionID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	l.seen[id] = at.UTC()
	return l.persistLocked()
}

// Release drops a pending reservation.
func (l *FileLedger) Release(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, id)
	return nil
}

func (l *FileLedger) persistLocked() error {
	return writeJSON(l.path, ledgerPayload{Seen: l.seen}, 0o600)
}

// Compile-time assertions that both ledgers implement domain.RedemptionLedger.
var (
	_ domain.RedemptionLedger = (*MemoryLedger)(nil)
	_ domain.RedemptionLedger = (*FileLedger)(nil)
)
