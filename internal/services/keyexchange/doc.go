// Package keyexchange owns one party's cryptographic identity.
//
// Bootstrap redeems a single-use key token through the cryptographic provider
// and caches the resulting key material. A redemption ledger linearizes
// attempts on the same token: exactly one caller proceeds, the rest fail with
// domain.ErrTokenAlreadyRedeemed. A transient failure releases the token for
// another attempt; an authority-side replay verdict burns it.
//
// Encrypt and Decrypt resolve key material from the key cache only and never
// touch the network. EncryptText and DecryptText carry the envelope as
// base64-encoded JSON.
package keyexchange
