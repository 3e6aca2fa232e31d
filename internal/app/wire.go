package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"authmsg/internal/authority"
	"authmsg/internal/domain"
	"authmsg/internal/platform/privacylog"
	"authmsg/internal/protocol/sealbox"
	"authmsg/internal/services/keyexchange"
	"authmsg/internal/services/orchestrator"
	"authmsg/internal/services/session"
	"authmsg/internal/services/verification"
	"authmsg/internal/store"
)

// Wire bundles the stores, clients and services built from a Config.
type Wire struct {
	Config   Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Authority domain.Authority
	Issuer    domain.IdentityIssuer
	// Dev is the embedded development authority, nil when a URL is configured.
	Dev *authority.Memory

	Keys        domain.KeyCache
	Ledger      domain.RedemptionLedger
	Credentials *store.CredentialStore

	Binder   *session.Service
	Verifier *verification.Service
	Sender   *keyexchange.Client
	Receiver *keyexchange.Client
	Metrics  *orchestrator.Metrics

	closers []func() error
}

// NewLogger builds the slog logger described by cfg, writing to out, with
// secrets redacted.
func NewLogger(cfg LogConfig, out io.Writer) (*slog.Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(privacylog.WrapHandler(h)), nil
}

// NewDevAuthority builds the development authority for cfg's application.
// A nil ledger selects an in-memory one.
func NewDevAuthority(cfg Config, ledger domain.RedemptionLedger, log *slog.Logger) (*authority.Memory, error) {
	approver := authority.AutoApprove()
	if len(cfg.Dev.DenyUsers) > 0 {
		users := make([]domain.UserID, 0, len(cfg.Dev.DenyUsers))
		for _, u := range cfg.Dev.DenyUsers {
			users = append(users, domain.UserID(u))
		}
		approver = authority.DenyUsers(users...)
	}
	if cfg.Dev.ApproveDelay > 0 {
		approver = authority.ApproveAfter(cfg.Dev.ApproveDelay, approver)
	}
	endpoint := cfg.Authority.URL
	if endpoint == "" {
		endpoint = "inproc://authority"
	}
	return authority.NewMemory(authority.Options{
		Apps: map[string]authority.App{
			cfg.Authority.ClientID: {Secret: cfg.Authority.ClientSecret, Scopes: cfg.Authority.Scopes},
		},
		Endpoint:    endpoint,
		AccessTTL:   cfg.Dev.AccessTTL,
		IdentityTTL: cfg.Dev.IdentityTTL,
		Approver:    approver,
		Ledger:      ledger,
		Logger:      log,
	})
}

// NewWire constructs the dependency graph from cfg. Logs go to logOut.
func NewWire(cfg Config, logOut io.Writer) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	w := &Wire{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	w.Registry.MustRegister(collectors.NewGoCollector())

	if err := w.buildAuthority(); err != nil {
		return nil, err
	}
	if err := w.buildStores(); err != nil {
		_ = w.Close()
		return nil, err
	}

	provider := sealbox.New(w.Issuer)
	w.Credentials = store.NewCredentialStore(w.Keys)
	w.Sender = keyexchange.New(provider, w.Credentials, w.Ledger, logger.With("party", cfg.Workflow.Sender))
	w.Receiver = keyexchange.New(provider, w.Credentials, w.Ledger, logger.With("party", cfg.Workflow.Receiver))

	retry := session.DefaultRetryPolicy()
	if cfg.Authority.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Authority.RetryAttempts
	}
	w.Binder = session.New(w.Authority, retry, logger)
	w.Verifier = verification.New(w.Authority, verification.Config{
		Timeout:       cfg.Workflow.VerificationTimeout,
		RatePerSecond: cfg.Workflow.VerificationRate,
		RateBurst:     cfg.Workflow.VerificationBurst,
	}, logger)
	w.Metrics = orchestrator.NewMetrics(w.Registry)
	return w, nil
}

func (w *Wire) buildAuthority() error {
	if w.Config.Authority.URL != "" {
		hc := authority.NewHTTP(w.Config.Authority.URL, http.DefaultClient)
		w.Authority, w.Issuer = hc, hc
		return nil
	}
	// The authority keeps its own ledger; sharing the client's would make
	// every redemption look like a replay.
	dev, err := NewDevAuthority(w.Config, nil, w.Logger.With("component", "authority"))
	if err != nil {
		return err
	}
	w.Dev, w.Authority, w.Issuer = dev, dev, dev
	w.Logger.Info("using in-process development authority")
	return nil
}

func (w *Wire) buildStores() error {
	kc := w.Config.KeyCache
	switch kc.Backend {
	case KeyCacheFile:
		dir := kc.Path
		if dir == "" {
			home, err := w.Config.ResolveHome()
			if err != nil {
				return err
			}
			dir = filepath.Join(home, "keys")
		}
		w.Keys = store.NewFileKeyCache(dir, kc.Passphrase)
	case KeyCacheRedis:
		client := redis.NewClient(&redis.Options{Addr: kc.RedisAddr, DB: kc.RedisDB})
		rc := store.NewRedisKeyCache(client, kc.RedisPrefix)
		w.Keys = rc
		w.closers = append(w.closers, rc.Close)
	default:
		w.Keys = store.NewMemoryKeyCache()
	}

	if w.Config.Ledger.Path == "" {
		w.Ledger = store.NewMemoryLedger()
		return nil
	}
	fl := store.NewFileLedger(w.Config.Ledger.Path)
	if err := fl.Bootstrap(); err != nil {
		return fmt.Errorf("load redemption ledger: %w", err)
	}
	w.Ledger = fl
	return nil
}

// OrchestratorDeps returns the collaborators for a workflow run.
func (w *Wire) OrchestratorDeps() orchestrator.Deps {
	return orchestrator.Deps{
		Binder:      w.Binder,
		Verifier:    w.Verifier,
		Sender:      w.Sender,
		Receiver:    w.Receiver,
		Credentials: w.Credentials,
		Metrics:     w.Metrics,
		Logger:      w.Logger.With("component", "orchestrator"),
	}
}

// Close releases external connections.
func (w *Wire) Close() error {
	var errs []error
	for _, c := range w.closers {
		errs = append(errs, c())
	}
	w.closers = nil
	return errors.Join(errs...)
}
