package interfaces

import (
	"time"

	domaintypes "authmsg/internal/domain/types"
)

// KeyCache holds key material by key id. It is the one contract the host
// exposes outward to the cryptographic provider.
//
// Put inserts only when no record exists for rec.KeyID; a collision is a
// no-op and returns nil. The error return is reserved for backend failures.
// Get reports absence with ok == false, never with an error.
type KeyCache interface {
	Put(rec domaintypes.KeyRecord) error
	Get(id domaintypes.KeyID) (domaintypes.KeyRecord, bool, error)
}

// RedemptionLedger linearizes single-use token redemption.
//
// Reserve claims id and returns false if it is already reserved or redeemed.
// Confirm marks a reservation as permanently redeemed; Release drops a
// reservation that did not complete so it may be attempted again.
type RedemptionLedger interface {
	Reserve(id string, at time.Time) (bool, error)
	Confirm(id string, at time.Time) error
	Release(id string) error
}
