// Package sealbox is the cryptographic provider behind the key exchange.
//
// # Bootstrap
//
// BootstrapIdentity generates an X25519 key pair locally and presents the
// public half to the authority together with the single-use key token. The
// authority answers with the key id and validity deadline it bound to the
// key; the private half never leaves the process.
//
// # Envelopes
//
// Encrypt seals a message from one cached identity to another:
//  1. Generate an ephemeral X25519 key pair.
//  2. Compute DH(EK, IKr) and DH(IKs, IKr).
//  3. HKDF-SHA256 over the concatenated DH outputs, salted with EK||IKr,
//     yields a 32-byte message key.
//  4. XChaCha20-Poly1305 with a random 24-byte nonce. The associated data
//     binds both key ids, the sender's identity key and EK.
//
// Decrypt performs the mirrored DH set with the receiver's private key. Any
// failure to open the envelope is reported as domain.ErrDecryptionFailure.
//
// Encrypt and Decrypt perform no I/O and are safe for concurrent use.
package sealbox
