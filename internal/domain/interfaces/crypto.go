package interfaces

import (
	"context"

	domaintypes "authmsg/internal/domain/types"
)

// CryptoProvider is the opaque cryptographic library. Only BootstrapIdentity
// performs network I/O; Encrypt and Decrypt are pure functions of their inputs.
type CryptoProvider interface {
	BootstrapIdentity(ctx context.Context, token domaintypes.KeyToken) (domaintypes.KeyMaterial, error)
	Encrypt(
		sender domaintypes.KeyRecord,
		recipient domaintypes.KeyRecord,
		plaintext []byte,
	) (domaintypes.Envelope, error)
	Decrypt(receiver domaintypes.KeyRecord, envelope domaintypes.Envelope) ([]byte, error)
}
