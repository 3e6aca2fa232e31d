// Package store holds the workflow's mutable shared state.
//
// It contains the CredentialStore (current access credential plus the key
// cache the cryptographic provider reads from), three KeyCache backends and
// the redemption ledgers that make key tokens single-use. All types are safe
// for concurrent use.
//
// Key cache backends:
//   - MemoryKeyCache: process-lifetime map guarded by a mutex.
//   - FileKeyCache: JSON map sealed under a passphrase (scrypt +
//     ChaCha20-Poly1305) and replaced atomically on every insert.
//   - RedisKeyCache: one key per record, inserted with SETNX.
//
// Every backend implements insert-if-absent: a second Put for the same key id
// leaves the first record in place and is not an error.
package store
