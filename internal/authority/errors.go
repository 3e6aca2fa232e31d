package authority

import (
	"errors"
	"fmt"
	"net/http"

	"authmsg/internal/domain"
)

// Wire error codes.
const (
	codeAuthFailure       = "auth_failure"
	codeCredentialExpired = "credential_expired"
	codeDenied            = "verification_denied"
	codeTimeout           = "verification_timeout"
	codeTokenRedeemed     = "token_redeemed"
	codeBadRequest        = "bad_request"
	codeInternal          = "internal"
)

var (
	errBadRequest       = errors.New("bad request")
	errInvalidPublicKey = fmt.Errorf("%w: invalid public key", errBadRequest)
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var codeTable = []struct {
	code   string
	status int
	err    error
}{
	{codeCredentialExpired, http.StatusUnauthorized, domain.ErrCredentialExpired},
	{codeAuthFailure, http.StatusUnauthorized, domain.ErrAuthFailure},
	{codeDenied, http.StatusForbidden, domain.ErrVerificationDenied},
	{codeTimeout, http.StatusRequestTimeout, domain.ErrVerificationTimeout},
	{codeTokenRedeemed, http.StatusConflict, domain.ErrTokenAlreadyRedeemed},
	{codeBadRequest, http.StatusBadRequest, errBadRequest},
}

// encodeError picks the wire code and status for err.
func encodeError(err error) (int, errorBody) {
	for _, row := range codeTable {
		if errors.Is(err, row.err) {
			return row.status, errorBody{Code: row.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, errorBody{Code: codeInternal, Message: "internal error"}
}

// decodeError turns an error response back into a domain error.
func decodeError(status int, body errorBody) error {
	for _, row := range codeTable {
		if body.Code == row.code {
			return fmt.Errorf("%w: %s", row.err, body.Message)
		}
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: authority answered %d", domain.ErrTransientNetwork, status)
	}
	return fmt.Errorf("authority answered %d: %s", status, body.Message)
}
