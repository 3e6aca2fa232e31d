package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"authmsg/internal/async"
	"authmsg/internal/domain"
	"authmsg/internal/platform/ratelimiter"
)

// DefaultTimeout bounds how long a user has to answer a verification request.
const DefaultTimeout = 5 * time.Minute

// Pending is the one-shot handle returned by Request.
type Pending = async.Future[domain.VerificationResult]

// Config tunes the coordinator. Zero values select defaults; a zero rate
// disables per-user limiting.
type Config struct {
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// Service implements domain.VerificationCoordinator.
type Service struct {
	authority domain.Authority
	limiter   *ratelimiter.KeyLimiter
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// New returns a coordinator that forwards requests to authority.
func New(authority domain.Authority, cfg Config, log *slog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		authority: authority,
		limiter:   ratelimiter.New(cfg.RatePerSecond, cfg.RateBurst, 0),
		timeout:   cfg.Timeout,
		now:       time.Now,
		log:       log,
	}
}

// WithClock replaces the time source used for staleness and rate checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Request asks the authority to have userID approve the request. An empty
// correlationID is replaced with a random uuid.
func (s *Service) Request(
	ctx context.Context,
	credential domain.AccessCredential,
	userID domain.UserID,
	title string,
	body string,
	correlationID domain.CorrelationID,
) *Pending {
	now := s.now()
	if credential.Stale(now) {
		return async.Failed[domain.VerificationResult](fmt.Errorf(
			"%w: valid before %s", domain.ErrCredentialExpired, credential.ValidBefore.UTC().Format(time.RFC3339)))
	}
	if !s.limiter.Allow(userID.String(), now) {
		return async.Failed[domain.VerificationResult](fmt.Errorf(
			"%w: too many requests for %s", domain.ErrVerificationError, userID))
	}
	if correlationID == "" {
		correlationID = domain.CorrelationID(uuid.NewString())
	}
	req := domain.VerificationRequest{
		UserID:        userID,
		Title:         title,
		Body:          body,
		CorrelationID: correlationID,
	}

	s.log.Info("verification requested", "user", userID, "correlation_id", correlationID)
	return async.Go(ctx, func(ctx context.Context) (domain.VerificationResult, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.authority.RequestVerification(ctx, credential, req)
		return s.settle(ctx, req, res, err)
	})
}

// settle maps the authority's answer onto the verification outcomes.
func (s *Service) settle(
	ctx context.Context,
	req domain.VerificationRequest,
	res domain.VerificationResult,
	err error,
) (domain.VerificationResult, error) {
	if err != nil {
		err = classify(ctx, err)
		s.log.Warn("verification failed", "user", req.UserID, "correlation_id", req.CorrelationID, "error", err)
		return domain.VerificationResult{}, err
	}
	if !res.Approved {
		s.log.Info("verification denied", "user", req.UserID, "correlation_id", req.CorrelationID)
		return domain.VerificationResult{}, fmt.Errorf("%w: %s", domain.ErrVerificationDenied, req.UserID)
	}
	if res.KeyToken == "" {
		return domain.VerificationResult{}, fmt.Errorf("%w: approval without key token", domain.ErrVerificationError)
	}
	if res.UserID == "" {
		res.UserID = req.UserID
	}
	if res.CorrelationID == "" {
		res.CorrelationID = req.CorrelationID
	}
	if res.UserID != req.UserID || res.CorrelationID != req.CorrelationID {
		return domain.VerificationResult{}, fmt.Errorf("%w: result does not match request", domain.ErrVerificationError)
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = s.now().UTC()
	}
	s.log.Info("verification approved",
		"user", res.UserID,
		"correlation_id", res.CorrelationID,
		"key_token", res.KeyToken,
	)
	return res, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrVerificationDenied),
		errors.Is(err, domain.ErrVerificationTimeout),
		errors.Is(err, domain.ErrCredentialExpired),
		errors.Is(err, domain.ErrCancelled):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: no answer in time", domain.ErrVerificationTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.ErrCancelled
	default:
		return fmt.Errorf("%w: %v", domain.ErrVerificationError, err)
	}
}

// Compile-time assertion that Service implements domain.VerificationCoordinator.
var _ domain.VerificationCoordinator = (*Service)(nil)
