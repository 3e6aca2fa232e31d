package domain

import (
	interfaces "authmsg/internal/domain/interfaces"
	types "authmsg/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID              = types.UserID
	KeyID               = types.KeyID
	KeyToken            = types.KeyToken
	CorrelationID       = types.CorrelationID
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	AccessCredential    = types.AccessCredential
	VerificationRequest = types.VerificationRequest
	VerificationResult  = types.VerificationResult
	CryptoIdentity      = types.CryptoIdentity
	IdentityGrant       = types.IdentityGrant
	KeyMaterial         = types.KeyMaterial
	KeyRecord           = types.KeyRecord
	Envelope            = types.Envelope
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyCache                = interfaces.KeyCache
	RedemptionLedger        = interfaces.RedemptionLedger
	Authority               = interfaces.Authority
	IdentityIssuer          = interfaces.IdentityIssuer
	CryptoProvider          = interfaces.CryptoProvider
	SessionBinder           = interfaces.SessionBinder
	VerificationCoordinator = interfaces.VerificationCoordinator
	KeyExchangeClient       = interfaces.KeyExchangeClient
)
