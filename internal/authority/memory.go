package authority

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authmsg/internal/crypto"
	"authmsg/internal/domain"
	"authmsg/internal/store"
)

const (
	issuerName = "authmsg-dev"

	DefaultAccessTTL    = 15 * time.Minute
	DefaultRebindWindow = 12 * time.Hour
	DefaultIdentityTTL  = 24 * time.Hour

	keyTokenBytes = 32
)

// App is a registered application allowed to bind.
type App struct {
	Secret string
	Scopes []string
}

// Approver decides a verification request on behalf of the user.
type Approver func(ctx context.Context, req domain.VerificationRequest) (bool, error)

// AutoApprove approves every request.
func AutoApprove() Approver {
	return func(context.Context, domain.VerificationRequest) (bool, error) { return true, nil }
}

// DenyUsers rejects requests for the listed users and approves everyone else.
func DenyUsers(users ...domain.UserID) Approver {
	return func(_ context.Context, req domain.VerificationRequest) (bool, error) {
		return !slices.Contains(users, req.UserID), nil
	}
}

// ApproveAfter waits delay before deferring to next, giving up when ctx ends.
func ApproveAfter(delay time.Duration, next Approver) Approver {
	return func(ctx context.Context, req domain.VerificationRequest) (bool, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
			return next(ctx, req)
		}
	}
}

// Options configures a Memory authority. Zero values select defaults. A
// negative IdentityTTL issues identities that are already expired.
type Options struct {
	Apps         map[string]App
	SigningKey   []byte
	Endpoint     string
	AccessTTL    time.Duration
	RebindWindow time.Duration
	IdentityTTL  time.Duration
	Approver     Approver
	Ledger       domain.RedemptionLedger
	Now          func() time.Time
	Logger       *slog.Logger
}

type accessClaims struct {
	Scopes []string `json:"scp,omitempty"`
	jwt.RegisteredClaims
}

type issuedToken struct {
	user     domain.UserID
	issuedAt time.Time
}

type registeredKey struct {
	user        domain.UserID
	public      domain.X25519Public
	validBefore time.Time
}

// Memory is an in-process authority for development and tests.
type Memory struct {
	opts Options
	key  []byte
	log  *slog.Logger

	mu     sync.Mutex
	tokens map[string]issuedToken
	keys   map[domain.KeyID]registeredKey
}

// NewMemory returns a Memory authority.
func NewMemory(opts Options) (*Memory, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RebindWindow <= 0 {
		opts.RebindWindow = DefaultRebindWindow
	}
	if opts.IdentityTTL == 0 {
		opts.IdentityTTL = DefaultIdentityTTL
	}
	if opts.Approver == nil {
		opts.Approver = AutoApprove()
	}
	if opts.Ledger == nil {
		opts.Ledger = store.NewMemoryLedger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	key := opts.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &Memory{
		opts:   opts,
		key:    key,
		log:    opts.Logger,
		tokens: make(map[string]issuedToken),
		keys:   make(map[domain.KeyID]registeredKey),
	}, nil
}

// Bind checks the application secret and requested scopes.
func (m *Memory) Bind(_ context.Context, clientID, clientSecret string, scopes []string) (domain.AccessCredential, error) {
	app, ok := m.opts.Apps[clientID]
	if !ok || subtle.ConstantTimeCompare([]byte(app.Secret), []byte(clientSecret)) != 1 {
		return domain.AccessCredential{}, fmt.Errorf("%w: unknown client or bad secret", domain.ErrAuthFailure)
	}
	for _, s := range scopes {
		if !slices.Contains(app.Scopes, s) {
			return domain.AccessCredential{}, fmt.Errorf("%w: scope %q not granted", domain.ErrAuthFailure, s)
		}
	}
	return m.issue(clientID, scopes)
}

// Rebind replaces a credential issued within the rebind window, expired or not.
func (m *Memory) Rebind(_ context.Context, previous domain.AccessCredential) (domain.AccessCredential, error) {
	claims, err := m.parse(previous.Token, true)
	if err != nil {
		return domain.AccessCredential{}, err
	}
	if claims.Issuer != issuerName {
		return domain.AccessCredential{}, fmt.Errorf("%w: foreign credential", domain.ErrAuthFailure)
	}
	if _, ok := m.opts.Apps[claims.Subject]; !ok {
		return domain.AccessCredential{}, fmt.Errorf("%w: client no longer registered", domain.ErrAuthFailure)
	}
	if claims.IssuedAt == nil || !m.opts.Now().Before(claims.IssuedAt.Add(m.opts.RebindWindow)) {
		return domain.AccessCredential{}, fmt.Errorf("%w: rebind window elapsed", domain.ErrAuthFailure)
	}
	return m.issue(claims.Subject, claims.Scopes)
}

// RequestVerification asks the Approver and, on approval, mints a key token.
func (m *Memory) RequestVerification(
	ctx context.Context,
	credential domain.AccessCredential,
	req domain.VerificationRequest,
) (domain.VerificationResult, error) {
	if _, err := m.parse(credential.Token, false); err != nil {
		return domain.VerificationResult{}, err
	}
	approved, err := m.opts.Approver(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.VerificationResult{}, fmt.Errorf("%w: %v", domain.ErrVerificationTimeout, err)
		}
		return domain.VerificationResult{}, err
	}
	res := domain.VerificationResult{
		Approved:      approved,
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
		ResolvedAt:    m.opts.Now().UTC(),
	}
	if !approved {
		return res, nil
	}

	token, err := crypto.RandomToken(keyTokenBytes)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	m.mu.Lock()
	m.tokens[crypto.Digest(token)] = issuedToken{user: req.UserID, issuedAt: res.ResolvedAt}
	m.mu.Unlock()

	res.KeyToken = domain.KeyToken(token)
	return res, nil
}

// RegisterIdentityKey redeems token once and binds public to its user.
func (m *Memory) RegisterIdentityKey(
	_ context.Context,
	token domain.KeyToken,
	public domain.X25519Public,
) (domain.IdentityGrant, error) {
	if public == (domain.X25519Public{}) {
		return domain.IdentityGrant{}, errInvalidPublicKey
	}
	now := m.opts.Now()
	digest := crypto.Digest(token.String())

	ok, err := m.opts.Ledger.Reserve(digest, now)
	if err != nil {
		return domain.IdentityGrant{}, err
	}
	if !ok {
		return domain.IdentityGrant{}, domain.ErrTokenAlreadyRedeemed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	issued, known := m.tokens[digest]
	if !known {
		_ = m.opts.Ledger.Release(digest)
		return domain.IdentityGrant{}, fmt.Errorf("%w: unknown key token", domain.ErrAuthFailure)
	}
	if err := m.opts.Ledger.Confirm(digest, now); err != nil {
		_ = m.opts.Ledger.Release(digest)
		return domain.IdentityGrant{}, err
	}
	delete(m.tokens, digest)

	grant := domain.IdentityGrant{
		UserID:      issued.user,
		KeyID:       domain.KeyID(uuid.NewString()),
		ValidBefore: now.Add(m.opts.IdentityTTL).UTC(),
	}
	m.keys[grant.KeyID] = registeredKey{user: grant.UserID, public: public, validBefore: grant.ValidBefore}
	m.log.Info("identity key registered", "user", grant.UserID, "key_id", grant.KeyID)
	return grant, nil
}

func (m *Memory) issue(clientID string, scopes []string) (domain.AccessCredential, error) {
	now := m.opts.Now()
	claims := accessClaims{
		Scopes: append([]string(nil), scopes...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   clientID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.opts.AccessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return domain.AccessCredential{}, err
	}
	return domain.AccessCredential{
		Token:       signed,
		ClientID:    clientID,
		Scopes:      claims.Scopes,
		Endpoint:    m.opts.Endpoint,
		ValidBefore: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// parse validates a credential token. allowExpired skips the exp check for rebind.
func (m *Memory) parse(token string, allowExpired bool) (*accessClaims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing credential", domain.ErrAuthFailure)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.opts.Now),
		jwt.WithIssuer(issuerName),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return m.key, nil }, opts...)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", domain.ErrCredentialExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthFailure, err)
	}
}

// Compile-time assertions that Memory serves as a full Backend.
var (
	_ domain.Authority      = (*Memory)(nil)
	_ domain.IdentityIssuer = (*Memory)(nil)
)
