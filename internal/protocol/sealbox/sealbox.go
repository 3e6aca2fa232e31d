package sealbox

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"authmsg/internal/crypto"
	"authmsg/internal/domain"
)

const (
	keySize = chacha20poly1305.KeySize
	kdfInfo = "authmsg-sealbox|v1"
)

var (
	errNoPrivateKey = errors.New("key record carries no private key")
	errNoIssuer     = errors.New("sealbox: identity issuer not configured")
)

// Provider implements domain.CryptoProvider.
type Provider struct {
	issuer domain.IdentityIssuer
}

// New returns a Provider that registers bootstrapped keys with issuer.
func New(issuer domain.IdentityIssuer) *Provider {
	return &Provider{issuer: issuer}
}

// BootstrapIdentity generates a key pair and redeems token for it.
func (p *Provider) BootstrapIdentity(ctx context.Context, token domain.KeyToken) (domain.KeyMaterial, error) {
	if p.issuer == nil {
		return domain.KeyMaterial{}, errNoIssuer
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyMaterial{}, err
	}
	grant, err := p.issuer.RegisterIdentityKey(ctx, token, pub)
	if err != nil {
		crypto.Wipe(priv[:])
		return domain.KeyMaterial{}, err
	}
	return domain.KeyMaterial{
		UserID:      grant.UserID,
		KeyID:       grant.KeyID,
		Public:      pub,
		Private:     priv,
		ValidBefore: grant.ValidBefore,
	}, nil
}

// Encrypt seals plaintext from sender to recipient.
func (p *Provider) Encrypt(sender, recipient domain.KeyRecord, plaintext []byte) (domain.Envelope, error) {
	senderPriv, err := privateOf(sender)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("sender %s: %w", sender.KeyID, err)
	}
	defer crypto.Wipe(senderPriv[:])

	senderPub, err := crypto.PublicFromBytes(sender.Public)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("sender %s: %w", sender.KeyID, err)
	}
	recipientPub, err := crypto.PublicFromBytes(recipient.Public)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("recipient %s: %w", recipient.KeyID, err)
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Envelope{}, err
	}
	defer crypto.Wipe(ephPriv[:])

	dh1, err := crypto.DH(ephPriv, recipientPub)
	if err != nil {
		return domain.Envelope{}, err
	}
	dh2, err := crypto.DH(senderPriv, recipientPub)
	if err != nil {
		return domain.Envelope{}, err
	}

	env := domain.Envelope{
		RecipientKeyID: recipient.KeyID,
		SenderKeyID:    sender.KeyID,
		SenderPublic:   senderPub,
		Ephemeral:      ephPub,
		Nonce:          make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return domain.Envelope{}, err
	}

	key := messageKey(dh1, dh2, ephPub, recipientPub)
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return domain.Envelope{}, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, associatedData(env))
	return env, nil
}

// Decrypt opens env with receiver's private key.
func (p *Provider) Decrypt(receiver domain.KeyRecord, env domain.Envelope) ([]byte, error) {
	if env.RecipientKeyID != receiver.KeyID {
		return nil, fmt.Errorf("%w: envelope addressed to %s", domain.ErrDecryptionFailure, env.RecipientKeyID)
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: bad nonce length", domain.ErrDecryptionFailure)
	}
	receiverPriv, err := privateOf(receiver)
	if err != nil {
		return nil, fmt.Errorf("receiver %s: %w", receiver.KeyID, err)
	}
	defer crypto.Wipe(receiverPriv[:])

	receiverPub, err := crypto.PublicFromBytes(receiver.Public)
	if err != nil {
		return nil, fmt.Errorf("receiver %s: %w", receiver.KeyID, err)
	}

	dh1, err := crypto.DH(receiverPriv, env.Ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}
	dh2, err := crypto.DH(receiverPriv, env.SenderPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}

	key := messageKey(dh1, dh2, env.Ephemeral, receiverPub)
	defer crypto.Wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, env.Nonce, env.Ciphertext, associatedData(env))
	if err != nil {
		return nil, domain.ErrDecryptionFailure
	}
	return pt, nil
}

func privateOf(rec domain.KeyRecord) (domain.X25519Private, error) {
	if len(rec.Private) == 0 {
		return domain.X25519Private{}, errNoPrivateKey
	}
	return crypto.PrivateFromBytes(rec.Private)
}

// messageKey derives the AEAD key; both DH outputs are wiped.
func messageKey(dh1, dh2 [32]byte, eph, recipient domain.X25519Public) []byte {
	ikm := make([]byte, 0, 64)
	ikm = append(ikm, dh1[:]...)
	ikm = append(ikm, dh2[:]...)
	crypto.Wipe(dh1[:])
	crypto.Wipe(dh2[:])

	salt := make([]byte, 0, 64)
	salt = append(salt, eph[:]...)
	salt = append(salt, recipient[:]...)

	r := hkdf.New(sha256.New, ikm, salt, []byte(kdfInfo))
	key := make([]byte, keySize)
	_, _ = io.ReadFull(r, key)
	crypto.Wipe(ikm)
	return key
}

func associatedData(env domain.Envelope) []byte {
	ad := make([]byte, 0, len(env.RecipientKeyID)+len(env.SenderKeyID)+66)
	ad = append(ad, env.RecipientKeyID...)
	ad = append(ad, 0)
	ad = append(ad, env.SenderKeyID...)
	ad = append(ad, 0)
	ad = append(ad, env.SenderPublic[:]...)
	ad = append(ad, env.Ephemeral[:]...)
	return ad
}

// Compile-time assertion that Provider implements domain.CryptoProvider.
var _ domain.CryptoProvider = (*Provider)(nil)
