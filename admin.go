package auth

import (
	"context"

	"github.com/google/uuid"
)

// Admin exposes the administrative account transitions.
type Admin struct {
	accounts AccountStore
	machine  AccountStateMachine
	locker   Locker
	logger   Logger
	metrics  Metrics
}

type AdminOption func(*Admin)

func WithAdminLogger(logger Logger) AdminOption {
	return func(a *Admin) {
		a.logger = normalizeLogger(logger)
	}
}

// WithAdminLocker serializes admin transitions with logins. Pass the
// Guard's locker.
func WithAdminLocker(l Locker) AdminOption {
	return func(a *Admin) {
		a.locker = l
	}
}

func WithAdminMetrics(m Metrics) AdminOption {
	return func(a *Admin) {
		a.metrics = normalizeMetrics(m)
	}
}

// NewAdmin returns an Admin applying transitions through machine.
func NewAdmin(accounts AccountStore, machine AccountStateMachine, opts ...AdminOption) *Admin {
	a := &Admin{
		accounts: accounts,
		machine:  machine,
		logger:   defLogger{},
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.machine == nil {
		a.machine = NewAccountStateMachine(accounts, WithStateMachineLogger(a.logger))
	}
	return a
}

// Unblock lifts a lockout block. Only BLOCKED accounts can be unblocked.
func (a *Admin) Unblock(ctx context.Context, actor ActorRef, id uuid.UUID, reason string) (*Account, error) {
	return a.transition(ctx, actor, id, AccountStatusActive, reason, AccountStatusBlocked)
}

// Deactivate moves an ACTIVE or BLOCKED account to INACTIVE.
func (a *Admin) Deactivate(ctx context.Context, actor ActorRef, id uuid.UUID, reason string) (*Account, error) {
	return a.transition(ctx, actor, id, AccountStatusInactive, reason, AccountStatusActive, AccountStatusBlocked)
}

// Reactivate moves an INACTIVE account back to ACTIVE.
func (a *Admin) Reactivate(ctx context.Context, actor ActorRef, id uuid.UUID, reason string) (*Account, error) {
	return a.transition(ctx, actor, id, AccountStatusActive, reason, AccountStatusInactive)
}

// ListBlocked returns the accounts currently locked out.
func (a *Admin) ListBlocked(ctx context.Context) ([]*Account, error) {
	return a.accounts.ListByStatus(ctx, AccountStatusBlocked)
}

func (a *Admin) transition(ctx context.Context, actor ActorRef, id uuid.UUID, target AccountStatus, reason string, from ...AccountStatus) (*Account, error) {
	account, err := a.accounts.FindByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, withMeta(ErrAccountNotFound, map[string]any{"id": id.String()})
		}
		return nil, err
	}

	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, account.Email)
		if err != nil {
			return nil, err
		}
		defer unlock()

		// re-read under the lock
		if account, err = a.accounts.FindByID(ctx, id); err != nil {
			return nil, err
		}
	}

	current := a.machine.CurrentStatus(account)
	if !containsStatus(from, current) {
		return nil, withMeta(ErrInvalidTransition, map[string]any{
			"account_id": id.String(),
			"from":       current,
			"to":         target,
		})
	}

	if actor.Type == "" {
		actor.Type = "admin"
	}

	updated, err := a.machine.Transition(ctx, actor, account, target, WithTransitionReason(reason))
	if err != nil {
		return nil, err
	}

	a.metrics.StatusTransition(current, target)
	a.logger.Info("account status changed by admin", "account_id", id.String(), "from", current, "to", target, "actor_id", actor.ID)
	return updated, nil
}

func containsStatus(list []AccountStatus, status AccountStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}
