package orchestrator

import (
	"fmt"
	"time"

	"authmsg/internal/domain"
)

// State is a workflow state.
type State string

const (
	StateUnbound      State = "unbound"
	StateBound        State = "bound"
	StateVerifying    State = "verifying"
	StateBothVerified State = "both_verified"
	StateExchanging   State = "exchanging"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Reason qualifies StateFailed.
type Reason string

const (
	ReasonAuthFailure         Reason = "auth_failure"
	ReasonVerificationFailure Reason = "verification_failure"
	ReasonCryptoFailure       Reason = "crypto_failure"
)

// Status is one entry of the transition history.
type Status struct {
	State  State
	User   domain.UserID
	Reason Reason
	Err    error
	At     time.Time
}

func (s Status) String() string {
	switch {
	case s.State == StateFailed:
		return fmt.Sprintf("failed(%s): %v", s.Reason, s.Err)
	case s.User != "":
		return fmt.Sprintf("%s(%s)", s.State, s.User)
	default:
		return string(s.State)
	}
}

// Terminal reports whether no further transitions follow without a retry.
func (s Status) Terminal() bool {
	return s.State == StateDone || s.State == StateFailed
}

// Failure is returned by Run and RetryExchange when the workflow ends in
// StateFailed. It unwraps to the underlying stage error.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Reason, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }
