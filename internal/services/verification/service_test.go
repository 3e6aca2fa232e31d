package verification_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"authmsg/internal/domain"
	"authmsg/internal/services/verification"
)

type approverFunc func(ctx context.Context, req domain.VerificationRequest) (domain.VerificationResult, error)

type fakeAuthority struct {
	calls   atomic.Int32
	approve approverFunc
}

func (a *fakeAuthority) Bind(context.Context, string, string, []string) (domain.AccessCredential, error) {
	return domain.AccessCredential{}, errors.New("not used")
}

func (a *fakeAuthority) Rebind(context.Context, domain.AccessCredential) (domain.AccessCredential, error) {
	return domain.AccessCredential{}, errors.New("not used")
}

func (a *fakeAuthority) RequestVerification(ctx context.Context, _ domain.AccessCredential, req domain.VerificationRequest) (domain.VerificationResult, error) {
	a.calls.Add(1)
	return a.approve(ctx, req)
}

func approveAll(_ context.Context, req domain.VerificationRequest) (domain.VerificationResult, error) {
	return domain.VerificationResult{
		Approved:      true,
		KeyToken:      domain.KeyToken("tok-" + req.UserID.String()),
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
	}, nil
}

func blockUntilDone(ctx context.Context, _ domain.VerificationRequest) (domain.VerificationResult, error) {
	<-ctx.Done()
	return domain.VerificationResult{}, ctx.Err()
}

func freshCredential() domain.AccessCredential {
	return domain.AccessCredential{Token: "tok", ValidBefore: time.Now().Add(time.Hour)}
}

func newService(auth domain.Authority, cfg verification.Config) *verification.Service {
	return verification.New(auth, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequest_Approved(t *testing.T) {
	auth := &fakeAuthority{approve: approveAll}
	svc := newService(auth, verification.Config{})

	res, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if !res.Approved || res.KeyToken != "tok-alice" || res.UserID != "alice" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.CorrelationID == "" {
		t.Fatal("correlation id not generated")
	}
	if res.ResolvedAt.IsZero() {
		t.Fatal("resolved time not set")
	}
}

func TestRequest_KeepsCorrelationID(t *testing.T) {
	svc := newService(&fakeAuthority{approve: approveAll}, verification.Config{})
	res, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "corr-1").Await(context.Background())
	if err != nil || res.CorrelationID != "corr-1" {
		t.Fatalf("correlation id: %q %v", res.CorrelationID, err)
	}
}

func TestRequest_StaleCredentialNoNetwork(t *testing.T) {
	auth := &fakeAuthority{approve: approveAll}
	svc := newService(auth, verification.Config{})

	stale := domain.AccessCredential{Token: "tok", ValidBefore: time.Now().Add(-time.Second)}
	p := svc.Request(context.Background(), stale, "alice", "t", "b", "")
	if _, err, ok := p.Result(); !ok || !errors.Is(err, domain.ErrCredentialExpired) {
		t.Fatalf("expected immediate credential expiry, ok=%v err=%v", ok, err)
	}
	if auth.calls.Load() != 0 {
		t.Fatal("authority contacted with a stale credential")
	}
}

func TestRequest_Denied(t *testing.T) {
	auth := &fakeAuthority{approve: func(_ context.Context, req domain.VerificationRequest) (domain.VerificationResult, error) {
		return domain.VerificationResult{Approved: false, UserID: req.UserID, CorrelationID: req.CorrelationID}, nil
	}}
	svc := newService(auth, verification.Config{})

	_, err := svc.Request(context.Background(), freshCredential(), "bob", "t", "b", "").Await(context.Background())
	if !errors.Is(err, domain.ErrVerificationDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
}

func TestRequest_Timeout(t *testing.T) {
	svc := newService(&fakeAuthority{approve: blockUntilDone}, verification.Config{Timeout: 20 * time.Millisecond})

	_, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background())
	if !errors.Is(err, domain.ErrVerificationTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestRequest_Cancel(t *testing.T) {
	svc := newService(&fakeAuthority{approve: blockUntilDone}, verification.Config{})

	p := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "")
	p.Cancel()
	_, err := p.Await(context.Background())
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRequest_ParentContextCancelled(t *testing.T) {
	svc := newService(&fakeAuthority{approve: blockUntilDone}, verification.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	p := svc.Request(ctx, freshCredential(), "alice", "t", "b", "")
	cancel()
	_, err := p.Await(context.Background())
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRequest_OtherFailure(t *testing.T) {
	auth := &fakeAuthority{approve: func(context.Context, domain.VerificationRequest) (domain.VerificationResult, error) {
		return domain.VerificationResult{}, errors.New("boom")
	}}
	svc := newService(auth, verification.Config{})

	_, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background())
	if !errors.Is(err, domain.ErrVerificationError) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestRequest_ApprovalWithoutToken(t *testing.T) {
	auth := &fakeAuthority{approve: func(_ context.Context, req domain.VerificationRequest) (domain.VerificationResult, error) {
		return domain.VerificationResult{Approved: true}, nil
	}}
	svc := newService(auth, verification.Config{})

	_, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background())
	if !errors.Is(err, domain.ErrVerificationError) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestRequest_RateLimited(t *testing.T) {
	auth := &fakeAuthority{approve: approveAll}
	svc := newService(auth, verification.Config{RatePerSecond: 0.001, RateBurst: 1})

	if _, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background()); err != nil {
		t.Fatalf("first request: %v", err)
	}
	_, err := svc.Request(context.Background(), freshCredential(), "alice", "t", "b", "").Await(context.Background())
	if !errors.Is(err, domain.ErrVerificationError) {
		t.Fatalf("expected rate limit failure, got %v", err)
	}
	if _, err := svc.Request(context.Background(), freshCredential(), "bob", "t", "b", "").Await(context.Background()); err != nil {
		t.Fatalf("other user limited: %v", err)
	}
	if auth.calls.Load() != 2 {
		t.Fatalf("expected 2 authority calls, got %d", auth.calls.Load())
	}
}
