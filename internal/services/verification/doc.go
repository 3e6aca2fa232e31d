// Package verification turns a per-user approval request into exactly one
// terminal outcome.
//
// Request never blocks. It returns a Pending future that resolves with the
// approved VerificationResult (carrying a single-use key token) or with one
// of domain.ErrCredentialExpired, ErrVerificationDenied,
// ErrVerificationTimeout, ErrVerificationError or ErrCancelled.
//
// A stale credential and an exhausted per-user rate limit are detected
// locally and resolve the future before any call to the authority is made.
package verification
