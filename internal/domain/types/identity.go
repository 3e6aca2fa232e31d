package types

import "time"

// CryptoIdentity is a party's bootstrapped key material as seen by callers.
// The private half stays in the key cache under KeyID.
type CryptoIdentity struct {
	UserID      UserID       `json:"user_id"`
	KeyID       KeyID        `json:"key_id"`
	PublicKey   X25519Public `json:"public_key"`
	ValidBefore time.Time    `json:"valid_before"`
	Expired     bool         `json:"expired"`
}

// ExpiredAt reports whether the identity is past its validity deadline at now.
func (id CryptoIdentity) ExpiredAt(now time.Time) bool {
	return !now.Before(id.ValidBefore)
}

// IdentityGrant is what the authority returns when it accepts a key token and
// registers the public key presented with it.
type IdentityGrant struct {
	UserID      UserID    `json:"user_id"`
	KeyID       KeyID     `json:"key_id"`
	ValidBefore time.Time `json:"valid_before"`
}

// KeyMaterial is the full result of identity bootstrap: grant plus both key halves.
type KeyMaterial struct {
	UserID      UserID
	KeyID       KeyID
	Public      X25519Public
	Private     X25519Private
	ValidBefore time.Time
}

// Record converts the material into the key cache representation.
func (m KeyMaterial) Record() KeyRecord {
	return KeyRecord{
		KeyID:   m.KeyID,
		Private: append([]byte(nil), m.Private[:]...),
		Public:  append([]byte(nil), m.Public[:]...),
		Expiry:  m.ValidBefore.Unix(),
	}
}

// Identity returns the caller-facing view of the material.
func (m KeyMaterial) Identity(now time.Time) CryptoIdentity {
	id := CryptoIdentity{
		UserID:      m.UserID,
		KeyID:       m.KeyID,
		PublicKey:   m.Public,
		ValidBefore: m.ValidBefore,
	}
	id.Expired = id.ExpiredAt(now)
	return id
}

// KeyRecord is cached key material for one key id. Private may be empty for
// records that only carry a peer's public key.
type KeyRecord struct {
	KeyID   KeyID  `json:"key_id"`
	Private []byte `json:"private,omitempty"`
	Public  []byte `json:"public"`
	Expiry  int64  `json:"expiry"`
}
