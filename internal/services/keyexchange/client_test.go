package keyexchange_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"authmsg/internal/domain"
	"authmsg/internal/protocol/sealbox"
	"authmsg/internal/services/keyexchange"
	"authmsg/internal/store"
)

// fakeIssuer redeems each token once, like the authority would.
type fakeIssuer struct {
	mu       sync.Mutex
	redeemed map[domain.KeyToken]bool
	failNext []error
	calls    atomic.Int32
	validFor time.Duration

	// fixedKeyID, when set, is issued for every token.
	fixedKeyID domain.KeyID
}

func newIssuer() *fakeIssuer {
	return &fakeIssuer{redeemed: map[domain.KeyToken]bool{}, validFor: time.Hour}
}

func (f *fakeIssuer) RegisterIdentityKey(_ context.Context, token domain.KeyToken, _ domain.X25519Public) (domain.IdentityGrant, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return domain.IdentityGrant{}, err
	}
	if f.redeemed[token] {
		return domain.IdentityGrant{}, domain.ErrTokenAlreadyRedeemed
	}
	f.redeemed[token] = true
	keyID := f.fixedKeyID
	if keyID == "" {
		keyID = domain.KeyID(uuid.NewString())
	}
	return domain.IdentityGrant{
		UserID:      domain.UserID("user-" + string(token)),
		KeyID:       keyID,
		ValidBefore: time.Now().Add(f.validFor),
	}, nil
}

type fixture struct {
	issuer *fakeIssuer
	keys   *store.MemoryKeyCache
	ledger *store.MemoryLedger
}

func newFixture() *fixture {
	return &fixture{issuer: newIssuer(), keys: store.NewMemoryKeyCache(), ledger: store.NewMemoryLedger()}
}

func (f *fixture) client() *keyexchange.Client {
	return keyexchange.New(sealbox.New(f.issuer), f.keys, f.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustBootstrap(t *testing.T, c *keyexchange.Client, token string) domain.CryptoIdentity {
	t.Helper()
	id, err := c.Bootstrap(context.Background(), domain.KeyToken(token))
	if err != nil {
		t.Fatalf("bootstrap %s: %v", token, err)
	}
	return id
}

func TestBootstrap_SetsOwnerAndCachesKey(t *testing.T) {
	f := newFixture()
	c := f.client()

	if _, ok := c.QueryOwner(); ok {
		t.Fatal("owner before bootstrap")
	}
	id := mustBootstrap(t, c, "alice-token")

	owner, ok := c.QueryOwner()
	if !ok || owner.KeyID != id.KeyID || owner.Expired {
		t.Fatalf("unexpected owner %+v ok=%v", owner, ok)
	}
	rec, ok, err := f.keys.Get(id.KeyID)
	if err != nil || !ok {
		t.Fatalf("key not cached: ok=%v err=%v", ok, err)
	}
	if len(rec.Private) != 32 || rec.Expiry != id.ValidBefore.Unix() {
		t.Fatalf("unexpected cached record %+v", rec)
	}
}

func TestBootstrap_ReplayFailsOwnerUnchanged(t *testing.T) {
	f := newFixture()
	c := f.client()
	first := mustBootstrap(t, c, "alice-token")

	_, err := c.Bootstrap(context.Background(), "alice-token")
	if !errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
		t.Fatalf("expected replay failure, got %v", err)
	}
	owner, _ := c.QueryOwner()
	if owner.KeyID != first.KeyID {
		t.Fatal("owner changed after failed replay")
	}
	if f.issuer.calls.Load() != 1 {
		t.Fatalf("replay reached the authority: %d calls", f.issuer.calls.Load())
	}
}

func TestBootstrap_ReplayAcrossClientsSharingLedger(t *testing.T) {
	f := newFixture()
	mustBootstrap(t, f.client(), "shared")
	if _, err := f.client().Bootstrap(context.Background(), "shared"); !errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
		t.Fatalf("expected replay failure, got %v", err)
	}
}

func TestBootstrap_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture()
	c := f.client()

	var wins, replays atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Bootstrap(context.Background(), "race-token")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrTokenAlreadyRedeemed):
				replays.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 || replays.Load() != 15 {
		t.Fatalf("wins=%d replays=%d", wins.Load(), replays.Load())
	}
}

func TestBootstrap_TransientFailureReleasesToken(t *testing.T) {
	f := newFixture()
	f.issuer.failNext = []error{domain.ErrTransientNetwork}
	c := f.client()

	if _, err := c.Bootstrap(context.Background(), "tok"); !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if _, ok := c.QueryOwner(); ok {
		t.Fatal("owner set after failed bootstrap")
	}
	mustBootstrap(t, c, "tok")
}

func TestBootstrap_AuthorityReplayBurnsToken(t *testing.T) {
	f := newFixture()
	f.issuer.failNext = []error{domain.ErrTokenAlreadyRedeemed}
	c := f.client()

	if _, err := c.Bootstrap(context.Background(), "tok"); !errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
		t.Fatalf("expected replay failure, got %v", err)
	}
	if _, err := c.Bootstrap(context.Background(), "tok"); !errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
		t.Fatalf("burned token accepted: %v", err)
	}
	if f.issuer.calls.Load() != 1 {
		t.Fatalf("burned token reached the authority again: %d calls", f.issuer.calls.Load())
	}
}

func TestBootstrap_ExistingKeyIDKeepsCachedRecord(t *testing.T) {
	f := newFixture()
	f.issuer.fixedKeyID = "fixed-uuid"
	c := f.client()

	first := mustBootstrap(t, c, "t1")
	f.issuer.validFor = 3 * time.Hour
	second := mustBootstrap(t, c, "t2")

	if second.KeyID != first.KeyID || second.PublicKey != first.PublicKey {
		t.Fatalf("second bootstrap replaced the cached key: %+v vs %+v", second, first)
	}
	if second.ValidBefore.Unix() != first.ValidBefore.Unix() {
		t.Fatalf("validity taken from new material: %s vs %s", second.ValidBefore, first.ValidBefore)
	}
	owner, ok := c.QueryOwner()
	if !ok || owner.PublicKey != first.PublicKey {
		t.Fatalf("owner %+v ok=%v", owner, ok)
	}
	rec, _, err := f.keys.Get("fixed-uuid")
	if err != nil || !bytes.Equal(rec.Public, first.PublicKey[:]) {
		t.Fatalf("cached record changed: %v", err)
	}

	peer := f.client()
	f.issuer.fixedKeyID = ""
	mustBootstrap(t, peer, "peer")
	env, err := peer.Encrypt("fixed-uuid", []byte("still works"))
	if err != nil {
		t.Fatalf("encrypt to kept key: %v", err)
	}
	if got, err := c.Decrypt(env); err != nil || string(got) != "still works" {
		t.Fatalf("decrypt with kept key: %q %v", got, err)
	}
}

func TestBootstrap_EmptyToken(t *testing.T) {
	if _, err := newFixture().client().Bootstrap(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	f := newFixture()
	alice, bob := f.client(), f.client()
	mustBootstrap(t, alice, "a")
	bobID := mustBootstrap(t, bob, "b")

	env, err := alice.Encrypt(bobID.KeyID, []byte("Hello world!"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := bob.Decrypt(env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != "Hello world!" {
		t.Fatalf("plaintext mismatch %q", got)
	}
}

func TestEncryptDecryptText_RoundTrip(t *testing.T) {
	f := newFixture()
	alice, bob := f.client(), f.client()
	aliceID := mustBootstrap(t, alice, "a")
	mustBootstrap(t, bob, "b")

	text, err := bob.EncryptText(aliceID.KeyID, "Cool, got your message: hi")
	if err != nil {
		t.Fatalf("encrypt text: %v", err)
	}
	got, err := alice.DecryptText(text)
	if err != nil || got != "Cool, got your message: hi" {
		t.Fatalf("decrypt text: %q %v", got, err)
	}
	if _, err := alice.DecryptText("not base64!"); !errors.Is(err, domain.ErrDecryptionFailure) {
		t.Fatalf("garbage text: %v", err)
	}
}

func TestEncrypt_Errors(t *testing.T) {
	f := newFixture()
	c := f.client()
	if _, err := c.Encrypt("anyone", []byte("x")); !errors.Is(err, domain.ErrNoIdentity) {
		t.Fatalf("expected no identity, got %v", err)
	}
	mustBootstrap(t, c, "a")
	if _, err := c.Encrypt("unknown", []byte("x")); !errors.Is(err, domain.ErrRecipientKeyUnknown) {
		t.Fatalf("expected unknown recipient, got %v", err)
	}
}

func TestExpiredIdentityGated(t *testing.T) {
	f := newFixture()
	alice, bob := f.client(), f.client()
	mustBootstrap(t, alice, "a")
	bobID := mustBootstrap(t, bob, "b")

	env, err := alice.Encrypt(bobID.KeyID, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	alice.WithClock(later)
	bob.WithClock(later)

	if owner, _ := alice.QueryOwner(); !owner.Expired {
		t.Fatal("owner should report expiry")
	}
	if _, err := alice.Encrypt(bobID.KeyID, []byte("x")); !errors.Is(err, domain.ErrIdentityExpired) {
		t.Fatalf("encrypt after expiry: %v", err)
	}
	if _, err := bob.Decrypt(env); !errors.Is(err, domain.ErrIdentityExpired) {
		t.Fatalf("decrypt after expiry: %v", err)
	}
}

func TestDecrypt_RejectsForeignAndForged(t *testing.T) {
	f := newFixture()
	alice, bob, carol := f.client(), f.client(), f.client()
	aliceID := mustBootstrap(t, alice, "a")
	bobID := mustBootstrap(t, bob, "b")
	mustBootstrap(t, carol, "c")

	env, _ := alice.Encrypt(bobID.KeyID, []byte("secret"))
	if _, err := carol.Decrypt(env); !errors.Is(err, domain.ErrDecryptionFailure) {
		t.Fatalf("foreign envelope: %v", err)
	}

	forged := env
	forged.SenderPublic = aliceID.PublicKey
	forged.SenderPublic[0] ^= 0xff
	if _, err := bob.Decrypt(forged); !errors.Is(err, domain.ErrDecryptionFailure) {
		t.Fatalf("forged sender key: %v", err)
	}
}
