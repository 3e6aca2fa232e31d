package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"authmsg/internal/async"
	"authmsg/internal/domain"
)

var errNothingToRebind = errors.New("no previous credential to rebind")

// RetryPolicy bounds the backoff applied to transient authority failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, InitialInterval: 250 * time.Millisecond, MaxInterval: 5 * time.Second}
}

// Service implements domain.SessionBinder on top of a domain.Authority.
type Service struct {
	authority domain.Authority
	retry     RetryPolicy
	log       *slog.Logger
}

// New returns a binder for authority. A zero policy selects DefaultRetryPolicy
// and a nil logger selects slog.Default().
func New(authority domain.Authority, retry RetryPolicy, log *slog.Logger) *Service {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{authority: authority, retry: retry, log: log}
}

// Bind presents the application credentials and returns a fresh access credential.
func (s *Service) Bind(
	ctx context.Context,
	clientID string,
	clientSecret string,
	scopes []string,
) (domain.AccessCredential, error) {
	cred, err := s.withRetry(ctx, "bind", func(ctx context.Context) (domain.AccessCredential, error) {
		return s.authority.Bind(ctx, clientID, clientSecret, scopes)
	})
	if err != nil {
		return domain.AccessCredential{}, err
	}
	s.log.Info("session bound",
		"client_id", cred.ClientID,
		"endpoint", cred.Endpoint,
		"valid_before", cred.ValidBefore,
	)
	return cred, nil
}

// Rebind exchanges previous for a replacement credential. previous is not modified.
func (s *Service) Rebind(ctx context.Context, previous domain.AccessCredential) (domain.AccessCredential, error) {
	if previous.Token == "" {
		return domain.AccessCredential{}, fmt.Errorf("%w: %v", domain.ErrAuthFailure, errNothingToRebind)
	}
	cred, err := s.withRetry(ctx, "rebind", func(ctx context.Context) (domain.AccessCredential, error) {
		return s.authority.Rebind(ctx, previous)
	})
	if err != nil {
		return domain.AccessCredential{}, err
	}
	s.log.Info("session rebound",
		"client_id", cred.ClientID,
		"endpoint", cred.Endpoint,
		"valid_before", cred.ValidBefore,
	)
	return cred, nil
}

// BindAsync runs Bind in a goroutine and resolves the returned future once.
func (s *Service) BindAsync(
	ctx context.Context,
	clientID string,
	clientSecret string,
	scopes []string,
) *async.Future[domain.AccessCredential] {
	scopes = append([]string(nil), scopes...)
	return async.Go(ctx, func(ctx context.Context) (domain.AccessCredential, error) {
		return s.Bind(ctx, clientID, clientSecret, scopes)
	})
}

// RebindAsync runs Rebind in a goroutine and resolves the returned future once.
func (s *Service) RebindAsync(
	ctx context.Context,
	previous domain.AccessCredential,
) *async.Future[domain.AccessCredential] {
	return async.Go(ctx, func(ctx context.Context) (domain.AccessCredential, error) {
		return s.Rebind(ctx, previous)
	})
}

// withRetry retries op while it fails transiently. Authentication failures
// and context cancellation stop immediately; anything else unrecognised is
// treated as a transient network failure.
func (s *Service) withRetry(
	ctx context.Context,
	op string,
	fn func(ctx context.Context) (domain.AccessCredential, error),
) (domain.AccessCredential, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retry.InitialInterval
	if s.retry.MaxInterval > 0 {
		policy.MaxInterval = s.retry.MaxInterval
	}
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.retry.MaxAttempts-1)), ctx)

	attempt := 0
	cred, err := backoff.RetryNotifyWithData(func() (domain.AccessCredential, error) {
		attempt++
		cred, err := fn(ctx)
		switch {
		case err == nil:
			return cred, nil
		case ctx.Err() != nil:
			return domain.AccessCredential{}, backoff.Permanent(ctx.Err())
		case errors.Is(err, domain.ErrAuthFailure):
			return domain.AccessCredential{}, backoff.Permanent(err)
		case errors.Is(err, domain.ErrTransientNetwork):
			return domain.AccessCredential{}, err
		default:
			return domain.AccessCredential{}, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
		}
	}, b, func(err error, wait time.Duration) {
		s.log.Warn("authority call failed, retrying",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.AccessCredential{}, domain.ErrCancelled
		}
		return domain.AccessCredential{}, err
	}
	return cred, nil
}

// Compile-time assertion that Service implements domain.SessionBinder.
var _ domain.SessionBinder = (*Service)(nil)
