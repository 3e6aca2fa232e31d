package commands

import (
	"errors"

	"authmsg/internal/app"
	"authmsg/internal/domain"
	"authmsg/internal/services/orchestrator"
)

// ExitCode is the process exit status for a command error.
type ExitCode int

const (
	ExitSuccess           ExitCode = 0
	ExitGeneralError      ExitCode = 1
	ExitConfigError       ExitCode = 2
	ExitAuthError         ExitCode = 5
	ExitVerificationError ExitCode = 6
	ExitCryptoError       ExitCode = 7
)

// A CryptoFailure happens after both users were verified and is reported
// without failing the process.
var reasonToExitCode = map[orchestrator.Reason]ExitCode{
	orchestrator.ReasonAuthFailure:         ExitAuthError,
	orchestrator.ReasonVerificationFailure: ExitVerificationError,
	orchestrator.ReasonCryptoFailure:       ExitSuccess,
}

// sentinelExitCodes is checked in order; the first match wins.
var sentinelExitCodes = []struct {
	err  error
	code ExitCode
}{
	{app.ErrInvalidConfig, ExitConfigError},
	{orchestrator.ErrInvalidConfig, ExitConfigError},
	{domain.ErrAuthFailure, ExitAuthError},
	{domain.ErrCredentialExpired, ExitAuthError},
	{domain.ErrVerificationDenied, ExitVerificationError},
	{domain.ErrVerificationTimeout, ExitVerificationError},
	{domain.ErrVerificationError, ExitVerificationError},
	{domain.ErrTokenAlreadyRedeemed, ExitCryptoError},
	{domain.ErrIdentityExpired, ExitCryptoError},
	{domain.ErrNoIdentity, ExitCryptoError},
	{domain.ErrRecipientKeyUnknown, ExitCryptoError},
	{domain.ErrDecryptionFailure, ExitCryptoError},
}

// ExitCodeFor maps err to an exit code.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var f *orchestrator.Failure
	if errors.As(err, &f) {
		if code, ok := reasonToExitCode[f.Reason]; ok {
			return code
		}
	}
	for _, s := range sentinelExitCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return ExitGeneralError
}

// Int returns the integer value of the exit code.
func (e ExitCode) Int() int {
	return int(e)
}
