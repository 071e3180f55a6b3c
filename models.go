package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

const (
	// RoleVisitor can only browse public data
	RoleVisitor AccountRole = "VISITOR"
	// RoleUser can submit reports
	RoleUser AccountRole = "USER"
	// RoleManager triages and assigns reports
	RoleManager AccountRole = "MANAGER"
	// RoleAdmin manages accounts
	RoleAdmin AccountRole = "ADMIN"
)

// AccountStatus controls login eligibility.
type AccountStatus = string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusBlocked  AccountStatus = "BLOCKED"
)

// BlockReasonConsecutiveFailures is stored on accounts blocked by the guard.
const BlockReasonConsecutiveFailures = "blocked after 3 consecutive failed login attempts"

// Account is the account model
type Account struct {
	bun.BaseModel   `bun:"table:accounts,alias:acc"`
	ID              uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email           string        `bun:"email,notnull,unique" json:"email,omitempty"`
	ExternalID      string        `bun:"external_id,notnull,unique" json:"external_id,omitempty"`
	FirstName       string        `bun:"first_name" json:"first_name,omitempty"`
	LastName        string        `bun:"last_name" json:"last_name,omitempty"`
	Role            AccountRole   `bun:"account_role,notnull" json:"role,omitempty"`
	Status          AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	BlockReason     string        `bun:"block_reason,nullzero" json:"block_reason,omitempty"`
	StatusChangedAt *time.Time    `bun:"status_changed_at,nullzero" json:"status_changed_at,omitempty"`
	CreatedAt       *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus repairs a missing or unknown status to ACTIVE.
func (a *Account) EnsureStatus() {
	if a == nil {
		return
	}
	switch a.Status {
	case AccountStatusActive, AccountStatusInactive, AccountStatusBlocked:
	default:
		a.Status = AccountStatusActive
	}
}

func (a *Account) IsActive() bool   { return a != nil && a.Status == AccountStatusActive }
func (a *Account) IsBlocked() bool  { return a != nil && a.Status == AccountStatusBlocked }
func (a *Account) IsInactive() bool { return a != nil && a.Status == AccountStatusInactive }

// HasRole reports whether the account holds the given role.
func (a *Account) HasRole(role AccountRole) bool {
	return a != nil && a.Role == role
}

// Clone returns a copy safe to hand out of a store.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.StatusChangedAt != nil {
		t := *a.StatusChangedAt
		c.StatusChangedAt = &t
	}
	return &c
}

// AttemptReason classifies why an attempt ended the way it did.
type AttemptReason = string

const (
	AttemptReasonSuccess            AttemptReason = "success"
	AttemptReasonInvalidCredentials AttemptReason = "invalid_credentials"
	AttemptReasonAccountNotFound    AttemptReason = "account_not_found"
	AttemptReasonAccountInactive    AttemptReason = "account_inactive"
	AttemptReasonDisabledUpstream   AttemptReason = "account_disabled_upstream"
	AttemptReasonVerifierError      AttemptReason = "verifier_error"
	AttemptReasonVerifierOutage     AttemptReason = "verifier_unavailable"
	AttemptReasonInternalError      AttemptReason = "internal_error"
)

// LoginAttempt is an append-only audit record, one per login call.
type LoginAttempt struct {
	bun.BaseModel `bun:"table:login_attempts,alias:la"`
	ID            int64         `bun:"id,pk,autoincrement" json:"id"`
	Email         string        `bun:"email,notnull" json:"email"`
	AccountID     *uuid.UUID    `bun:"account_id,type:uuid" json:"account_id,omitempty"`
	AttemptedAt   time.Time     `bun:"attempted_at,notnull" json:"attempted_at"`
	Success       bool          `bun:"success,notnull" json:"success"`
	Reason        AttemptReason `bun:"reason" json:"reason,omitempty"`
}

// AccountStateChange is one entry of an account's status history.
type AccountStateChange struct {
	bun.BaseModel `bun:"table:account_state_changes,alias:ast"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id"`
	AccountID     uuid.UUID     `bun:"account_id,notnull,type:uuid" json:"account_id"`
	From          AccountStatus `bun:"from_status,notnull" json:"from"`
	To            AccountStatus `bun:"to_status,notnull" json:"to"`
	Reason        string        `bun:"reason" json:"reason,omitempty"`
	ActorID       string        `bun:"actor_id" json:"actor_id,omitempty"`
	ActorType     string        `bun:"actor_type" json:"actor_type,omitempty"`
	OccurredAt    time.Time     `bun:"occurred_at,notnull" json:"occurred_at"`
}

// Credential is the password record owned by the local identity provider.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	Email         string     `bun:"email,pk" json:"email"`
	ExternalID    string     `bun:"external_id,notnull,unique" json:"external_id"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Disabled      bool       `bun:"disabled" json:"disabled"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// StatusUpdateOption mutates the record before a status change is persisted.
type StatusUpdateOption func(*Account)

// WithBlockReason sets the block reason. An empty reason clears it.
func WithBlockReason(reason string) StatusUpdateOption {
	return func(a *Account) {
		a.BlockReason = reason
	}
}

// WithStatusChangedAt sets the transition timestamp.
func WithStatusChangedAt(at time.Time) StatusUpdateOption {
	return func(a *Account) {
		a.StatusChangedAt = &at
	}
}
