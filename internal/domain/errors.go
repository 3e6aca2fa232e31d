package domain

import (
	"errors"
	"fmt"

	"authmsg/internal/async"
)

var (
	// ErrAuthFailure means the authority rejected the application credentials
	// or scopes. It is terminal and never retried.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrTransientNetwork means the authority could not be reached or answered
	// with a server-side failure. It is retryable with backoff.
	ErrTransientNetwork = errors.New("authority unreachable")
	// ErrCredentialExpired means a stale access credential was presented.
	// Rebind and retry.
	ErrCredentialExpired = errors.New("access credential expired")

	// ErrVerificationDenied means the user declined the approval request.
	ErrVerificationDenied = errors.New("verification denied")
	// ErrVerificationTimeout means the user did not answer within the window.
	ErrVerificationTimeout = errors.New("verification timed out")
	// ErrVerificationError covers any other failure to obtain a verification outcome.
	ErrVerificationError = errors.New("verification failed")
	// ErrCancelled resolves an operation abandoned by its caller.
	ErrCancelled = async.ErrCancelled

	// ErrTokenAlreadyRedeemed is a replay of a consumed key token.
	ErrTokenAlreadyRedeemed = errors.New("key token already redeemed")
	// ErrIdentityExpired means the identity passed its validity deadline.
	// Re-verify and re-bootstrap.
	ErrIdentityExpired = errors.New("identity expired")
	// ErrNoIdentity means Encrypt or Decrypt ran before any Bootstrap.
	ErrNoIdentity = errors.New("identity not bootstrapped")
	// ErrRecipientKeyUnknown means the recipient key id is not in the key cache.
	ErrRecipientKeyUnknown = errors.New("recipient key unknown")
	// ErrDecryptionFailure means the envelope is corrupt or not addressed to us.
	ErrDecryptionFailure = errors.New("decryption failed")
)

// Stage names a step of the messaging workflow.
type Stage string

const (
	StageBind      Stage = "bind"
	StageRebind    Stage = "rebind"
	StageVerify    Stage = "verify"
	StageBootstrap Stage = "bootstrap"
	StageExchange  Stage = "exchange"
)

// StageError attaches workflow context to an underlying failure.
type StageError struct {
	Stage Stage
	User  UserID
	Err   error
}

func (e *StageError) Error() string {
	if e.User != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.User, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage and user; nil stays nil.
func NewStageError(stage Stage, user UserID, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, User: user, Err: err}
}
