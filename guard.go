package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LoginResult is returned by a successful AttemptLogin.
type LoginResult struct {
	Account    *Account
	ExternalID string
	// Unblocked is set when the login lifted a lockout block.
	Unblocked bool
}

// Guard gates every login through account state checks and the
// consecutive failure policy. It is the only component that applies
// automatic status transitions.
type Guard struct {
	accounts     AccountStore
	attempts     AttemptLog
	verifier     CredentialVerifier
	history      StateChangeLog
	machine      AccountStateMachine
	locker       Locker
	clock        *monotonicClock
	maxAttempts  int
	countOutages bool
	logger       Logger
	metrics      Metrics
	activitySink ActivitySink
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		g.logger = normalizeLogger(logger)
	}
}

func WithGuardMetrics(m Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = normalizeMetrics(m)
	}
}

// WithGuardLocker replaces the in-process per email lock, e.g. with a
// distributed lock when several instances share the stores.
func WithGuardLocker(l Locker) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.locker = l
		}
	}
}

func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.clock = newMonotonicClock(now)
	}
}

func WithGuardActivitySink(sink ActivitySink) GuardOption {
	return func(g *Guard) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithGuardHistory records every automatic transition in history.
func WithGuardHistory(history StateChangeLog) GuardOption {
	return func(g *Guard) {
		g.history = history
	}
}

func WithGuardStateMachine(sm AccountStateMachine) GuardOption {
	return func(g *Guard) {
		g.machine = sm
	}
}

func WithMaxAttempts(n int) GuardOption {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithCountVerifierOutages makes provider outages count as failed attempts.
func WithCountVerifierOutages(count bool) GuardOption {
	return func(g *Guard) {
		g.countOutages = count
	}
}

// WithGuardConfig applies the lockout settings of cfg.
func WithGuardConfig(cfg Config) GuardOption {
	return func(g *Guard) {
		if cfg == nil {
			return
		}
		WithMaxAttempts(cfg.GetMaxAttempts())(g)
		g.countOutages = cfg.GetCountVerifierOutages()
	}
}

// NewGuard returns a Guard over the given stores and verifier.
func NewGuard(accounts AccountStore, attempts AttemptLog, verifier CredentialVerifier, opts ...GuardOption) *Guard {
	g := &Guard{
		accounts:     accounts,
		attempts:     attempts,
		verifier:     verifier,
		locker:       NewKeyedMutex(),
		clock:        newMonotonicClock(time.Now),
		maxAttempts:  DefaultMaxAttempts,
		logger:       defLogger{},
		metrics:      noopMetrics{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.machine == nil {
		smOpts := []StateMachineOption{
			WithStateMachineLogger(g.logger),
			WithStateMachineActivitySink(g.activitySink),
			WithStateMachineClock(g.clock.Now),
		}
		if g.history != nil {
			smOpts = append(smOpts, WithStateMachineHistory(g.history))
		}
		g.machine = NewAccountStateMachine(accounts, smOpts...)
	}

	return g
}

// MaxAttempts returns the number of consecutive failures that blocks an account.
func (g *Guard) MaxAttempts() int {
	return g.maxAttempts
}

// Locker returns the per email lock shared with administrative transitions.
func (g *Guard) Locker() Locker {
	return g.locker
}

// StateMachine returns the machine applying the guard's transitions.
func (g *Guard) StateMachine() AccountStateMachine {
	return g.machine
}

// AttemptLogin runs one login attempt. Every call appends exactly one
// LoginAttempt. Attempts for the same email are serialized.
func (g *Guard) AttemptLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	unlock, err := g.locker.Lock(ctx, email)
	if err != nil {
		g.record(ctx, email, nil, false, AttemptReasonInternalError)
		g.metrics.LoginOutcome(OutcomeInternalError)
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to acquire login lock")
	}
	defer unlock()

	account, err := g.accounts.FindByEmail(ctx, email)
	if err != nil && !IsNotFound(err) {
		g.record(ctx, email, nil, false, AttemptReasonInternalError)
		g.metrics.LoginOutcome(OutcomeInternalError)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	if account == nil {
		return nil, g.accountNotFound(ctx, email)
	}

	g.repairStatus(ctx, account)

	if account.IsInactive() {
		g.record(ctx, email, account, false, AttemptReasonAccountInactive)
		g.loginFailure(ctx, account, email, OutcomeAccountInactive, nil)
		return nil, withMeta(ErrAccountInactive, map[string]any{"email": email})
	}

	wasBlocked := account.IsBlocked()

	externalID, verr := g.verifier.Verify(ctx, email, password)
	if verr != nil {
		return nil, g.verificationFailed(ctx, account, email, AsVerifierError(verr))
	}

	g.record(ctx, email, account, true, AttemptReasonSuccess)

	if account.ExternalID != "" && externalID != "" && externalID != account.ExternalID {
		g.logger.Warn("verifier returned a different external id", "account_id", account.ID.String(), "external_id", externalID)
	}

	result := &LoginResult{Account: account, ExternalID: externalID}

	if wasBlocked {
		if _, err := g.machine.Transition(ctx, SystemActor, account, AccountStatusActive,
			WithTransitionReason("unblocked after successful login"),
		); err != nil {
			g.metrics.LoginOutcome(OutcomeInternalError)
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unblock account")
		}
		result.Unblocked = true
		g.metrics.StatusTransition(AccountStatusBlocked, AccountStatusActive)
		recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
			EventType: ActivityEventAccountUnblocked,
			AccountID: account.ID.String(),
			Email:     email,
		})
	}

	g.metrics.LoginOutcome(OutcomeSuccess)
	recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
		Email:     email,
	})

	return result, nil
}

func (g *Guard) accountNotFound(ctx context.Context, email string) error {
	g.record(ctx, email, nil, false, AttemptReasonAccountNotFound)
	remaining := remainingAttempts(g.maxAttempts, g.consecutiveFailures(ctx, email, time.Time{}))
	g.loginFailure(ctx, nil, email, OutcomeAccountNotFound, map[string]any{MetaRemainingAttempts: remaining})
	return withMeta(ErrAccountNotFound, map[string]any{
		"email":               email,
		MetaRemainingAttempts: remaining,
	})
}

func (g *Guard) verificationFailed(ctx context.Context, account *Account, email string, verr *VerifierError) error {
	switch {
	case verr.Kind == VerifierAccountDisabled:
		g.record(ctx, email, account, false, AttemptReasonDisabledUpstream)
		g.loginFailure(ctx, account, email, OutcomeAccountInactive, map[string]any{"verifier": verr.Error()})
		return withMeta(ErrAccountInactive, map[string]any{
			"email":    email,
			"upstream": true,
		})
	case verr.Transient() && !g.countOutages:
		g.record(ctx, email, account, false, AttemptReasonVerifierOutage)
		g.loginFailure(ctx, account, email, OutcomeVerifierUnavailable, map[string]any{"verifier": verr.Error()})
		err := withMeta(ErrVerifierUnavailable, map[string]any{
			"email": email,
			"kind":  verr.Kind.String(),
		})
		err.Source = verr
		return err
	}

	reason := AttemptReasonInvalidCredentials
	if verr.Kind != VerifierInvalidCredentials {
		reason = AttemptReasonVerifierError
	}
	g.record(ctx, email, account, false, reason)

	if account.IsBlocked() {
		g.loginFailure(ctx, account, email, OutcomeAccountBlocked, nil)
		return withMeta(ErrAccountBlocked, map[string]any{
			"email":               email,
			MetaRemainingAttempts: 0,
		})
	}

	failures := g.consecutiveFailures(ctx, email, counterStart(account))
	if failures >= g.maxAttempts {
		if _, err := g.machine.Transition(ctx, SystemActor, account, AccountStatusBlocked,
			WithTransitionReason(blockReason(g.maxAttempts)),
			WithTransitionMetadata(map[string]any{"consecutive_failures": failures}),
		); err != nil {
			g.metrics.LoginOutcome(OutcomeInternalError)
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to block account")
		}
		g.metrics.StatusTransition(AccountStatusActive, AccountStatusBlocked)
		recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
			EventType: ActivityEventAccountBlocked,
			AccountID: account.ID.String(),
			Email:     email,
			Metadata:  map[string]any{"consecutive_failures": failures},
		})
		g.loginFailure(ctx, account, email, OutcomeAccountBlocked, map[string]any{"consecutive_failures": failures})
		return withMeta(ErrAccountBlocked, map[string]any{
			"email":               email,
			MetaRemainingAttempts: 0,
		})
	}

	remaining := remainingAttempts(g.maxAttempts, failures)
	g.loginFailure(ctx, account, email, OutcomeInvalidCredentials, map[string]any{MetaRemainingAttempts: remaining})
	return withMeta(ErrInvalidCredentials, map[string]any{
		"email":               email,
		MetaRemainingAttempts: remaining,
	})
}

// record appends the attempt. Write failures are reported and swallowed.
func (g *Guard) record(ctx context.Context, email string, account *Account, success bool, reason AttemptReason) {
	attempt := &LoginAttempt{
		Email:       email,
		AttemptedAt: g.clock.Now(),
		Success:     success,
		Reason:      reason,
	}
	if account != nil {
		id := account.ID
		attempt.AccountID = &id
	}

	if err := g.attempts.Append(ctx, attempt); err != nil {
		g.metrics.AttemptLogFailure()
		g.logger.Error("failed to record login attempt", "email", email, "success", success, "error", err)
	}
}

// consecutiveFailures returns 0 when the log cannot be read so login stays available.
func (g *Guard) consecutiveFailures(ctx context.Context, email string, since time.Time) int {
	attempts, err := g.attempts.ListByEmail(ctx, email)
	if err != nil {
		g.metrics.AttemptLogFailure()
		g.logger.Error("failed to read login attempts", "email", email, "error", err)
		return 0
	}
	return ConsecutiveFailuresSince(attempts, since)
}

// counterStart is the last transition of an ACTIVE account. Failures made
// before an unblock or reactivation no longer count.
func counterStart(account *Account) time.Time {
	if account == nil || account.StatusChangedAt == nil {
		return time.Time{}
	}
	return *account.StatusChangedAt
}

// repairStatus persists ACTIVE for accounts stored without a valid status.
func (g *Guard) repairStatus(ctx context.Context, account *Account) {
	raw := account.Status
	account.EnsureStatus()
	if raw == account.Status {
		return
	}

	g.logger.Warn("account status missing or invalid, repairing", "account_id", account.ID.String(), "status", raw)
	if _, err := g.accounts.UpdateStatus(ctx, account.ID, account.Status); err != nil {
		g.logger.Error("failed to repair account status", "account_id", account.ID.String(), "error", err)
	}
}

func (g *Guard) loginFailure(ctx context.Context, account *Account, email, outcome string, meta map[string]any) {
	g.metrics.LoginOutcome(outcome)

	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "unknown"},
		Email:     email,
		Metadata:  map[string]any{"outcome": outcome},
	}
	for k, v := range meta {
		event.Metadata[k] = v
	}
	if account != nil {
		event.AccountID = account.ID.String()
		event.Actor = ActorRef{ID: account.ID.String(), Type: "account"}
	}

	recordActivity(ctx, g.activitySink, g.logger, event)
}

func blockReason(max int) string {
	if max == DefaultMaxAttempts {
		return BlockReasonConsecutiveFailures
	}
	return fmt.Sprintf("blocked after %d consecutive failed login attempts", max)
}
