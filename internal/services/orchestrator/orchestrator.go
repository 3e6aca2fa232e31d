package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"authmsg/internal/async"
	"authmsg/internal/domain"
	"authmsg/internal/store"
)

const (
	// ReplyPrefix starts the receiver's answer to the forward message.
	ReplyPrefix = "Cool, got your message: "

	DefaultMessage       = "Hello world!"
	DefaultTitle         = "authmsg demo"
	DefaultBody          = "An application is asking to verify your identity for an encrypted message exchange."
	DefaultRefreshMargin = 30 * time.Second
)

// ErrInvalidConfig marks a workflow Config that cannot produce a run.
var ErrInvalidConfig = errors.New("invalid workflow configuration")

var (
	errAlreadyStarted   = errors.New("workflow already started")
	errRetryNotAllowed  = errors.New("exchange retry needs a crypto failure with both identities present")
	errNoCredential     = errors.New("no access credential; bind first")
	errSameParticipants = errors.New("sender and receiver must differ")
)

// Config describes one workflow run.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	Sender   domain.UserID
	Receiver domain.UserID

	Title   string
	Body    string
	Message string

	// RefreshMargin rebinds a credential that would go stale within it.
	RefreshMargin time.Duration
	// ConcurrentVerification requests both approvals at once instead of in order.
	ConcurrentVerification bool
}

// Validate reports configuration that cannot produce a run.
func (c Config) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	case c.Sender == "" || c.Receiver == "":
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidConfig)
	case c.Sender == c.Receiver:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errSameParticipants)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Body == "" {
		c.Body = DefaultBody
	}
	if c.Message == "" {
		c.Message = DefaultMessage
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	return c
}

// Deps are the collaborators of an Orchestrator. Binder, Verifier, Sender and
// Receiver are required; the rest default.
type Deps struct {
	Binder      domain.SessionBinder
	Verifier    domain.VerificationCoordinator
	Sender      domain.KeyExchangeClient
	Receiver    domain.KeyExchangeClient
	Credentials *store.CredentialStore
	Metrics     *Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Report summarises a run.
type Report struct {
	Sender   domain.CryptoIdentity
	Receiver domain.CryptoIdentity
	Forward  string
	Reply    string
	History  []Status
}

// Orchestrator owns all state of one workflow run.
type Orchestrator struct {
	cfg      Config
	binder   domain.SessionBinder
	verifier domain.VerificationCoordinator
	sender   domain.KeyExchangeClient
	receiver domain.KeyExchangeClient
	creds    *store.CredentialStore
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time

	credMu sync.Mutex

	mu         sync.Mutex
	started    bool
	history    []Status
	senderID   *domain.CryptoIdentity
	receiverID *domain.CryptoIdentity
	forward    string
	reply      string
}

// New returns an Orchestrator in StateUnbound.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Credentials == nil {
		deps.Credentials = store.NewCredentialStore(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		binder:   deps.Binder,
		verifier: deps.Verifier,
		sender:   deps.Sender,
		receiver: deps.Receiver,
		creds:    deps.Credentials,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      deps.Now,
	}
	o.transition(Status{State: StateUnbound})
	return o
}

// Run drives the workflow from Unbound to Done or Failed. A failed run
// returns a *Failure. An invalid Config is rejected with ErrInvalidConfig
// before any transition.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if err := o.cfg.Validate(); err != nil {
		return o.Report(), err
	}
	o.mu.Lock()
	started := o.started
	o.started = true
	o.mu.Unlock()
	if started {
		return o.Report(), errAlreadyStarted
	}
	if err := o.bind(ctx); err != nil {
		return o.fail(err)
	}
	tokens, err := o.verifyBoth(ctx)
	if err != nil {
		return o.fail(err)
	}
	o.transition(Status{State: StateBothVerified})

	if err := o.bootstrapBoth(ctx, tokens); err != nil {
		return o.fail(err)
	}
	if err := o.exchange(); err != nil {
		return o.fail(err)
	}
	return o.Report(), nil
}

// RetryExchange reruns only the exchange after a CryptoFailure that left both
// identities in place.
func (o *Orchestrator) RetryExchange(ctx context.Context) (Report, error) {
	st := o.Status()
	o.mu.Lock()
	ready := o.senderID != nil && o.receiverID != nil
	o.mu.Unlock()
	if st.State != StateFailed || st.Reason != ReasonCryptoFailure || !ready {
		return o.Report(), errRetryNotAllowed
	}
	if err := ctx.Err(); err != nil {
		return o.Report(), err
	}
	if err := o.exchange(); err != nil {
		return o.fail(err)
	}
	return o.Report(), nil
}

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history[len(o.history)-1]
}

// History returns every transition so far, oldest first.
func (o *Orchestrator) History() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Status(nil), o.history...)
}

// Report returns what the run has produced so far.
func (o *Orchestrator) Report() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := Report{
		Forward: o.forward,
		Reply:   o.reply,
		History: append([]Status(nil), o.history...),
	}
	if o.senderID != nil {
		r.Sender = *o.senderID
	}
	if o.receiverID != nil {
		r.Receiver = *o.receiverID
	}
	return r
}

func (o *Orchestrator) bind(ctx context.Context) error {
	start := time.Now()
	cred, err := await(ctx, o.binder.BindAsync(ctx, o.cfg.ClientID, o.cfg.ClientSecret, o.cfg.Scopes))
	o.metrics.observe("bind", start, err)
	if err != nil {
		return failure(ReasonAuthFailure, domain.NewStageError(domain.StageBind, "", err))
	}
	o.creds.SetCredential(cred)
	o.transition(Status{State: StateBound})
	return nil
}

// credential returns a credential that stays usable for at least the refresh
// margin, rebinding first when needed.
func (o *Orchestrator) credential(ctx context.Context) (domain.AccessCredential, error) {
	o.credMu.Lock()
	defer o.credMu.Unlock()

	cred, ok := o.creds.Credential()
	if !ok {
		return domain.AccessCredential{}, failure(ReasonAuthFailure, errNoCredential)
	}
	if !cred.ExpiresWithin(o.now(), o.cfg.RefreshMargin) {
		return cred, nil
	}
	return o.rebindLocked(ctx, cred)
}

// refresh rebinds after the coordinator rejected stale, unless another
// caller already replaced it.
func (o *Orchestrator) refresh(ctx context.Context, stale domain.AccessCredential) (domain.AccessCredential, error) {
	o.credMu.Lock()
	defer o.credMu.Unlock()

	cred, ok := o.creds.Credential()
	if ok && cred.Token != stale.Token && !cred.ExpiresWithin(o.now(), o.cfg.RefreshMargin) {
		return cred, nil
	}
	return o.rebindLocked(ctx, stale)
}

func (o *Orchestrator) rebindLocked(ctx context.Context, previous domain.AccessCredential) (domain.AccessCredential, error) {
	o.log.Info("refreshing access credential", "valid_before", previous.ValidBefore)
	start := time.Now()
	next, err := await(ctx, o.binder.RebindAsync(ctx, previous))
	o.metrics.observe("rebind", start, err)
	if err != nil {
		return domain.AccessCredential{}, failure(ReasonAuthFailure, domain.NewStageError(domain.StageRebind, "", err))
	}
	o.creds.SetCredential(next)
	return next, nil
}

// verify obtains a fresh key token for user.
func (o *Orchestrator) verify(ctx context.Context, user domain.UserID) (domain.KeyToken, error) {
	cred, err := o.credential(ctx)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", failure(ReasonVerificationFailure, domain.NewStageError(domain.StageVerify, user, domain.ErrCancelled))
	}
	o.transition(Status{State: StateVerifying, User: user})

	res, err := o.request(ctx, cred, user)
	if errors.Is(err, domain.ErrCredentialExpired) {
		if cred, err = o.refresh(ctx, cred); err != nil {
			return "", err
		}
		res, err = o.request(ctx, cred, user)
	}
	if err != nil {
		return "", failure(ReasonVerificationFailure, domain.NewStageError(domain.StageVerify, user, err))
	}
	o.log.Info("user verified",
		"user", user,
		"key_token", res.KeyToken,
		"correlation_id", res.CorrelationID,
	)
	return res.KeyToken, nil
}

func (o *Orchestrator) request(ctx context.Context, cred domain.AccessCredential, user domain.UserID) (domain.VerificationResult, error) {
	start := time.Now()
	res, err := await(ctx, o.verifier.Request(ctx, cred, user, o.cfg.Title, o.cfg.Body, ""))
	o.metrics.observe("verify", start, err)
	return res, err
}

type tokens struct {
	sender   domain.KeyToken
	receiver domain.KeyToken
}

func (o *Orchestrator) verifyBoth(ctx context.Context) (tokens, error) {
	if !o.cfg.ConcurrentVerification {
		s, err := o.verify(ctx, o.cfg.Sender)
		if err != nil {
			return tokens{}, err
		}
		r, err := o.verify(ctx, o.cfg.Receiver)
		if err != nil {
			return tokens{}, err
		}
		return tokens{sender: s, receiver: r}, nil
	}

	// The first failure cancels the other request.
	vctx, cancel := context.WithCancel(ctx)
	defer cancel()
	users := [2]domain.UserID{o.cfg.Sender, o.cfg.Receiver}
	var futures [2]*async.Future[domain.KeyToken]
	for i, user := range users {
		futures[i] = async.Go(vctx, func(ctx context.Context) (domain.KeyToken, error) { return o.verify(ctx, user) })
	}

	first := 0
	select {
	case <-futures[0].Done():
	case <-futures[1].Done():
		first = 1
	case <-ctx.Done():
	}
	if _, err, ok := futures[first].Result(); ok && err != nil {
		futures[1-first].Cancel()
		cancel()
	}

	var out [2]domain.KeyToken
	var errs [2]error
	for _, i := range [2]int{first, 1 - first} {
		out[i], errs[i] = await(ctx, futures[i])
		if errs[i] != nil {
			errs[i] = asFailure(errs[i], ReasonVerificationFailure, domain.StageVerify, users[i])
		}
	}
	if err := errors.Join(errs[first], errs[1-first]); err != nil {
		return tokens{}, err
	}
	return tokens{sender: out[0], receiver: out[1]}, nil
}

func (o *Orchestrator) bootstrapBoth(ctx context.Context, t tokens) error {
	sf := async.Go(ctx, func(ctx context.Context) (domain.CryptoIdentity, error) {
		return o.bootstrap(ctx, o.cfg.Sender, o.sender, t.sender)
	})
	rf := async.Go(ctx, func(ctx context.Context) (domain.CryptoIdentity, error) {
		return o.bootstrap(ctx, o.cfg.Receiver, o.receiver, t.receiver)
	})
	s, serr := await(ctx, sf)
	if serr != nil {
		serr = asFailure(serr, ReasonCryptoFailure, domain.StageBootstrap, o.cfg.Sender)
	}
	r, rerr := await(ctx, rf)
	if rerr != nil {
		rerr = asFailure(rerr, ReasonCryptoFailure, domain.StageBootstrap, o.cfg.Receiver)
	}
	if err := errors.Join(serr, rerr); err != nil {
		return err
	}

	o.mu.Lock()
	o.senderID, o.receiverID = &s, &r
	o.mu.Unlock()
	return nil
}

// bootstrap redeems token for user. An identity that arrives already expired
// earns one fresh verification and one more bootstrap.
func (o *Orchestrator) bootstrap(
	ctx context.Context,
	user domain.UserID,
	client domain.KeyExchangeClient,
	token domain.KeyToken,
) (domain.CryptoIdentity, error) {
	id, err := o.redeem(ctx, user, client, token)
	if err != nil {
		return domain.CryptoIdentity{}, err
	}
	if !id.Expired {
		return id, nil
	}

	o.log.Warn("identity expired on arrival, verifying again", "user", user, "key_id", id.KeyID)
	fresh, err := o.verify(ctx, user)
	if err != nil {
		return domain.CryptoIdentity{}, err
	}
	if id, err = o.redeem(ctx, user, client, fresh); err != nil {
		return domain.CryptoIdentity{}, err
	}
	if id.Expired {
		return domain.CryptoIdentity{}, failure(ReasonCryptoFailure,
			domain.NewStageError(domain.StageBootstrap, user, domain.ErrIdentityExpired))
	}
	return id, nil
}

func (o *Orchestrator) redeem(
	ctx context.Context,
	user domain.UserID,
	client domain.KeyExchangeClient,
	token domain.KeyToken,
) (domain.CryptoIdentity, error) {
	start := time.Now()
	_, err := client.Bootstrap(ctx, token)
	o.metrics.observe("bootstrap", start, err)
	if err != nil {
		return domain.CryptoIdentity{}, failure(ReasonCryptoFailure, domain.NewStageError(domain.StageBootstrap, user, err))
	}
	id, ok := client.QueryOwner()
	if !ok {
		return domain.CryptoIdentity{}, failure(ReasonCryptoFailure,
			domain.NewStageError(domain.StageBootstrap, user, domain.ErrNoIdentity))
	}
	return id, nil
}

// exchange sends the message forward in binary form and the reply back in
// text form, checking both round trips.
func (o *Orchestrator) exchange() error {
	o.transition(Status{State: StateExchanging})
	start := time.Now()
	err := o.roundTrip()
	o.metrics.observe("exchange", start, err)
	if err != nil {
		return err
	}
	o.transition(Status{State: StateDone})
	return nil
}

func (o *Orchestrator) roundTrip() error {
	o.mu.Lock()
	s, r := *o.senderID, *o.receiverID
	o.mu.Unlock()

	cryptoFailure := func(user domain.UserID, err error) error {
		return failure(ReasonCryptoFailure, domain.NewStageError(domain.StageExchange, user, err))
	}

	msg := []byte(o.cfg.Message)
	env, err := o.sender.Encrypt(r.KeyID, msg)
	if err != nil {
		return cryptoFailure(s.UserID, err)
	}
	got, err := o.receiver.Decrypt(env)
	if err != nil {
		return cryptoFailure(r.UserID, err)
	}
	if !bytes.Equal(got, msg) {
		return cryptoFailure(r.UserID, fmt.Errorf("%w: forward message altered", domain.ErrDecryptionFailure))
	}
	o.log.Info("message delivered", "from", s.UserID, "to", r.UserID, "bytes", len(got))

	reply := ReplyPrefix + string(got)
	text, err := o.receiver.EncryptText(s.KeyID, reply)
	if err != nil {
		return cryptoFailure(r.UserID, err)
	}
	back, err := o.sender.DecryptText(text)
	if err != nil {
		return cryptoFailure(s.UserID, err)
	}
	if back != reply {
		return cryptoFailure(s.UserID, fmt.Errorf("%w: reply altered", domain.ErrDecryptionFailure))
	}
	o.log.Info("reply delivered", "from", r.UserID, "to", s.UserID, "bytes", len(back))

	o.mu.Lock()
	o.forward, o.reply = string(got), back
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) fail(err error) (Report, error) {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Reason: ReasonCryptoFailure, Err: err}
	}
	o.transition(Status{State: StateFailed, Reason: f.Reason, Err: f.Err})
	if f.Err != err {
		// Keep every joined failure visible to errors.Is.
		f = &Failure{Reason: f.Reason, Err: err}
	}
	return o.Report(), f
}

func (o *Orchestrator) transition(s Status) {
	s.At = o.now().UTC()
	o.mu.Lock()
	o.history = append(o.history, s)
	o.mu.Unlock()

	o.metrics.transition(s)
	if s.State == StateFailed {
		o.log.Error("workflow failed", "reason", s.Reason, "error", s.Err)
		return
	}
	o.log.Info("workflow state", "state", s.State, "user", s.User)
}

func failure(reason Reason, err error) error {
	return &Failure{Reason: reason, Err: err}
}

// asFailure leaves a *Failure as is and classifies anything else, such as a
// cancellation seen while awaiting, under reason.
func asFailure(err error, reason Reason, stage domain.Stage, user domain.UserID) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return failure(reason, domain.NewStageError(stage, user, err))
}

// await waits for f, cancelling it when ctx ends first.
func await[T any](ctx context.Context, f *async.Future[T]) (T, error) {
	v, err := f.Await(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		f.Cancel()
		var zero T
		return zero, domain.ErrCancelled
	}
	return v, err
}
