package types

// UserID names a user known to the authentication authority.
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// KeyID is the uuid the authority assigns to a bootstrapped public key.
type KeyID string

// String returns the string form of the key id.
func (id KeyID) String() string { return string(id) }

// KeyToken is the single-use secret a verification yields. It is redeemed
// exactly once to obtain a CryptoIdentity.
type KeyToken string

// String returns the raw token. Avoid logging it under a non-redacted key.
func (t KeyToken) String() string { return string(t) }

// CorrelationID ties a verification request to its result.
type CorrelationID string

// String returns the string form of the correlation id.
func (id CorrelationID) String() string { return string(id) }
