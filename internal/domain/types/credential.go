package types

import "time"

// AccessCredential authorizes calls to the authority on behalf of the bound
// application. It is never mutated; Rebind produces a replacement.
type AccessCredential struct {
	Token       string    `json:"token"`
	ClientID    string    `json:"client_id"`
	Scopes      []string  `json:"scopes,omitempty"`
	Endpoint    string    `json:"endpoint"`
	ValidBefore time.Time `json:"valid_before"`
}

// Stale reports whether the credential can no longer be used at now.
func (c AccessCredential) Stale(now time.Time) bool {
	return c.Token == "" || !now.Before(c.ValidBefore)
}

// ExpiresWithin reports whether the credential is stale at now+margin.
func (c AccessCredential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return c.Stale(now.Add(margin))
}
