// Package crypto exposes the primitives shared by the key exchange and the
// authority.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicFromPrivate, DH)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint,
//     FingerprintX25519) and full digests for ledger keys (Digest)
//   - Random URL-safe tokens (RandomToken)
//
// # Notes
//
// Key functions return the fixed-size array types defined in internal/domain.
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory.
package crypto
