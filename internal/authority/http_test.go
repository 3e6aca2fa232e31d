package authority_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"authmsg/internal/authority"
	"authmsg/internal/crypto"
	"authmsg/internal/domain"
)

func newHTTPPair(t *testing.T, approver authority.Approver) (*authority.HTTP, *prometheus.Registry) {
	t.Helper()
	m := newMemory(t, newClock(), approver)
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(authority.NewServer(m, reg, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return authority.NewHTTP(srv.URL, srv.Client()), reg
}

func TestHTTP_FullFlow(t *testing.T) {
	c, reg := newHTTPPair(t, authority.DenyUsers("bob"))
	ctx := context.Background()

	cred, err := c.Bind(ctx, "demo-app", "s3cret", []string{"verify"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if cred.Endpoint != "https://authority.test" {
		t.Fatalf("endpoint not carried: %q", cred.Endpoint)
	}

	cred, err = c.Rebind(ctx, cred)
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}

	res, err := c.RequestVerification(ctx, cred, domain.VerificationRequest{UserID: "alice", CorrelationID: "c1"})
	if err != nil || !res.Approved || res.KeyToken == "" {
		t.Fatalf("verify alice: %+v %v", res, err)
	}
	denied, err := c.RequestVerification(ctx, cred, domain.VerificationRequest{UserID: "bob"})
	if err != nil || denied.Approved {
		t.Fatalf("verify bob: %+v %v", denied, err)
	}

	_, pub, _ := crypto.GenerateX25519()
	grant, err := c.RegisterIdentityKey(ctx, res.KeyToken, pub)
	if err != nil || grant.UserID != "alice" {
		t.Fatalf("register: %+v %v", grant, err)
	}
	if _, err := c.RegisterIdentityKey(ctx, res.KeyToken, pub); !errors.Is(err, domain.ErrTokenAlreadyRedeemed) {
		t.Fatalf("replay over http: %v", err)
	}

	expected := `
# HELP authmsg_authority_requests_total Authority API requests by route and status code.
# TYPE authmsg_authority_requests_total counter
authmsg_authority_requests_total{code="200",route="bind"} 1
authmsg_authority_requests_total{code="200",route="identity"} 1
authmsg_authority_requests_total{code="200",route="rebind"} 1
authmsg_authority_requests_total{code="200",route="verify"} 2
authmsg_authority_requests_total{code="409",route="identity"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "authmsg_authority_requests_total"); err != nil {
		t.Fatalf("request metrics: %v", err)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	c, _ := newHTTPPair(t, nil)
	ctx := context.Background()

	if _, err := c.Bind(ctx, "demo-app", "wrong", nil); !errors.Is(err, domain.ErrAuthFailure) {
		t.Fatalf("bad secret: %v", err)
	}
	if _, err := c.RequestVerification(ctx, domain.AccessCredential{}, domain.VerificationRequest{UserID: "a"}); !errors.Is(err, domain.ErrAuthFailure) {
		t.Fatalf("missing bearer: %v", err)
	}
}

func TestHTTP_ServerDownIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := authority.NewHTTP(url, nil)
	if _, err := c.Bind(context.Background(), "a", "b", nil); !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient failure, got %v", err)
	}
}

func TestHTTP_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := authority.NewHTTP(srv.URL, srv.Client())
	if _, err := c.Bind(context.Background(), "a", "b", nil); !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("expected transient failure, got %v", err)
	}
}

func TestHTTP_ContextDeadline(t *testing.T) {
	c, _ := newHTTPPair(t, authority.ApproveAfter(time.Hour, authority.AutoApprove()))
	cred, err := c.Bind(context.Background(), "demo-app", "s3cret", nil)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.RequestVerification(ctx, cred, domain.VerificationRequest{UserID: "a"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestServer_BadJSON(t *testing.T) {
	m := newMemory(t, newClock(), nil)
	srv := httptest.NewServer(authority.NewServer(m, nil, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/bind", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
