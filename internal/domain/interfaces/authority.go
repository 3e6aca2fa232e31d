package interfaces

import (
	"context"

	domaintypes "authmsg/internal/domain/types"
)

// Authority is how we talk to the central authentication service.
// Every call blocks until the authority answers or ctx ends.
type Authority interface {
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
	RequestVerification(
		ctx context.Context,
		credential domaintypes.AccessCredential,
		request domaintypes.VerificationRequest,
	) (domaintypes.VerificationResult, error)
}

// IdentityIssuer accepts a key token together with a freshly generated public
// key and binds that key to the token's user.
type IdentityIssuer interface {
	RegisterIdentityKey(
		ctx context.Context,
		token domaintypes.KeyToken,
		public domaintypes.X25519Public,
	) (domaintypes.IdentityGrant, error)
}
