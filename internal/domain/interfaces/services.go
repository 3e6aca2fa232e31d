package interfaces

import (
	"context"

	"authmsg/internal/async"
	domaintypes "authmsg/internal/domain/types"
)

// SessionBinder binds the application to the authority and refreshes the
// resulting credential.
type SessionBinder interface {
	Bind(
		ctx context.Context,
		clientID string,
		clientSecret string,
		scopes []string,
	) (domaintypes.AccessCredential, error)
	Rebind(
		ctx context.Context,
		previous domaintypes.AccessCredential,
	) (domaintypes.AccessCredential, error)
	BindAsync(
		ctx context.Context,
		clientID string,
		clientSecret string,
		scopes []string,
	) *async.Future[domaintypes.AccessCredential]
	RebindAsync(
		ctx context.Context,
		previous domaintypes.AccessCredential,
	) *async.Future[domaintypes.AccessCredential]
}

// VerificationCoordinator turns a verification request into exactly one
// terminal outcome.
type VerificationCoordinator interface {
	Request(
		ctx context.Context,
		credential domaintypes.AccessCredential,
		userID domaintypes.UserID,
		title string,
		body string,
		correlationID domaintypes.CorrelationID,
	) *async.Future[domaintypes.VerificationResult]
}

// KeyExchangeClient owns one party's identity and its cipher operations.
type KeyExchangeClient interface {
	Bootstrap(ctx context.Context, token domaintypes.KeyToken) (domaintypes.CryptoIdentity, error)
	QueryOwner() (domaintypes.CryptoIdentity, bool)
	Encrypt(recipient domaintypes.KeyID, plaintext []byte) (domaintypes.Envelope, error)
	Decrypt(envelope domaintypes.Envelope) ([]byte, error)
	EncryptText(recipient domaintypes.KeyID, text string) (string, error)
	DecryptText(serialized string) (string, error)
}
