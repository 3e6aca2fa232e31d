package keyexchange

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"authmsg/internal/crypto"
	"authmsg/internal/domain"
)

var (
	errEmptyToken   = errors.New("key token is required")
	errOwnerMissing = errors.New("owner key missing from key cache")
)

// Client implements domain.KeyExchangeClient for a single owner.
type Client struct {
	provider domain.CryptoProvider
	keys     domain.KeyCache
	ledger   domain.RedemptionLedger
	now      func() time.Time
	log      *slog.Logger

	mu    sync.RWMutex
	owner *domain.CryptoIdentity
}

// New returns a Client. keys and ledger may be shared between clients.
func New(
	provider domain.CryptoProvider,
	keys domain.KeyCache,
	ledger domain.RedemptionLedger,
	log *slog.Logger,
) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: provider,
		keys:     keys,
		ledger:   ledger,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the time source used for expiry checks.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Bootstrap redeems token and makes the resulting identity this client's owner.
func (c *Client) Bootstrap(ctx context.Context, token domain.KeyToken) (domain.CryptoIdentity, error) {
	if token == "" {
		return domain.CryptoIdentity{}, errEmptyToken
	}
	// The ledger only ever sees a digest of the token.
	redemption := crypto.Digest(token.String())

	reserved, err := c.ledger.Reserve(redemption, c.now())
	if err != nil {
		return domain.CryptoIdentity{}, err
	}
	if !reserved {
		return domain.CryptoIdentity{}, domain.ErrTokenAlreadyRedeemed
	}

	material, err := c.provider.BootstrapIdentity(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
			if cerr := c.ledger.Confirm(redemption, c.now()); cerr != nil {
				c.log.Warn("record burned token", "error", cerr)
			}
			return domain.CryptoIdentity{}, err
		}
		if rerr := c.ledger.Release(redemption); rerr != nil {
			c.log.Warn("release token reservation", "error", rerr)
		}
		return domain.CryptoIdentity{}, err
	}
	if err := c.ledger.Confirm(redemption, c.now()); err != nil {
		c.log.Warn("record token redemption", "error", err)
	}

	rec := material.Record()
	crypto.Wipe(material.Private[:])
	if err := c.keys.Put(rec); err != nil {
		return domain.CryptoIdentity{}, fmt.Errorf("cache key %s: %w", rec.KeyID, err)
	}
	cached, ok, err := c.keys.Get(rec.KeyID)
	if err != nil {
		return domain.CryptoIdentity{}, err
	}
	if !ok {
		return domain.CryptoIdentity{}, fmt.Errorf("%s: %w", rec.KeyID, errOwnerMissing)
	}

	id := material.Identity(c.now())
	if !bytes.Equal(cached.Public, rec.Public) {
		// The key id already had a record: it wins and the new material is dropped.
		c.log.Warn("key id already cached, keeping existing record", "key_id", rec.KeyID)
		copy(id.PublicKey[:], cached.Public)
		id.ValidBefore = time.Unix(cached.Expiry, 0).UTC()
		id.Expired = id.ExpiredAt(c.now())
	}
	crypto.Wipe(rec.Private)
	c.mu.Lock()
	c.owner = &id
	c.mu.Unlock()

	c.log.Info("identity bootstrapped",
		"user", id.UserID,
		"key_id", id.KeyID,
		"public_key_fp", crypto.FingerprintX25519(id.PublicKey),
		"valid_before", id.ValidBefore,
	)
	return id, nil
}

// QueryOwner returns the most recently bootstrapped identity with Expired
// evaluated now.
func (c *Client) QueryOwner() (domain.CryptoIdentity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.owner == nil {
		return domain.CryptoIdentity{}, false
	}
	id := *c.owner
	id.Expired = id.ExpiredAt(c.now())
	return id, true
}

// Encrypt seals plaintext from the owner to the cached key recipient.
func (c *Client) Encrypt(recipient domain.KeyID, plaintext []byte) (domain.Envelope, error) {
	sender, err := c.ownerRecord()
	if err != nil {
		return domain.Envelope{}, err
	}
	peer, ok, err := c.keys.Get(recipient)
	if err != nil {
		return domain.Envelope{}, err
	}
	if !ok {
		return domain.Envelope{}, fmt.Errorf("%w: %s", domain.ErrRecipientKeyUnknown, recipient)
	}
	if !c.now().Before(time.Unix(peer.Expiry, 0)) {
		return domain.Envelope{}, fmt.Errorf("%w: recipient %s", domain.ErrIdentityExpired, recipient)
	}
	peer.Private = nil
	return c.provider.Encrypt(sender, peer, plaintext)
}

// Decrypt opens an envelope addressed to the owner.
func (c *Client) Decrypt(env domain.Envelope) ([]byte, error) {
	receiver, err := c.ownerRecord()
	if err != nil {
		return nil, err
	}
	if env.RecipientKeyID != receiver.KeyID {
		return nil, fmt.Errorf("%w: envelope addressed to %s", domain.ErrDecryptionFailure, env.RecipientKeyID)
	}
	// A known sender must present the key we cached for it.
	if known, ok, err := c.keys.Get(env.SenderKeyID); err == nil && ok {
		if !bytes.Equal(known.Public, env.SenderPublic[:]) {
			return nil, fmt.Errorf("%w: sender key mismatch", domain.ErrDecryptionFailure)
		}
	}
	return c.provider.Decrypt(receiver, env)
}

// EncryptText encrypts text and returns the envelope as base64 JSON.
func (c *Client) EncryptText(recipient domain.KeyID, text string) (string, error) {
	env, err := c.Encrypt(recipient, []byte(text))
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return crypto.B64(raw), nil
}

// DecryptText reverses EncryptText.
func (c *Client) DecryptText(serialized string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryptionFailure, err)
	}
	pt, err := c.Decrypt(env)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// ownerRecord returns the owner's cached key record after the expiry gate.
func (c *Client) ownerRecord() (domain.KeyRecord, error) {
	owner, ok := c.QueryOwner()
	if !ok {
		return domain.KeyRecord{}, domain.ErrNoIdentity
	}
	if owner.Expired {
		return domain.KeyRecord{}, fmt.Errorf("%w: %s", domain.ErrIdentityExpired, owner.KeyID)
	}
	rec, ok, err := c.keys.Get(owner.KeyID)
	if err != nil {
		return domain.KeyRecord{}, err
	}
	if !ok {
		return domain.KeyRecord{}, fmt.Errorf("%s: %w", owner.KeyID, errOwnerMissing)
	}
	return rec, nil
}

// Compile-time assertion that Client implements domain.KeyExchangeClient.
var _ domain.KeyExchangeClient = (*Client)(nil)
