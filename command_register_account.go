package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

type RegisterAccountMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UseHashid bool   `json:"-"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate will run validation rules
func (e RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&e.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 0),
		),
	)
}

// RegisterAccountHandler creates the provider credential and the local
// account for a new user.
type RegisterAccountHandler struct {
	accounts     AccountStore
	registrar    Registrar
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

type RegisterAccountOption func(*RegisterAccountHandler)

func WithRegisterLogger(logger Logger) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.logger = normalizeLogger(logger)
	}
}

func WithRegisterActivitySink(sink ActivitySink) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

// WithRegisterClock sets the clock stamped as the account's first status change.
func WithRegisterClock(now func() time.Time) RegisterAccountOption {
	return func(h *RegisterAccountHandler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewRegisterAccountHandler(accounts AccountStore, registrar Registrar, opts ...RegisterAccountOption) *RegisterAccountHandler {
	h := &RegisterAccountHandler{
		accounts:     accounts,
		registrar:    registrar,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	_, err := h.Register(ctx, event)
	return err
}

// Register validates the message and returns the new ACTIVE account.
func (h *RegisterAccountHandler) Register(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.register(ctx, event)
	}
}

func (h *RegisterAccountHandler) register(ctx context.Context, event RegisterAccountMessage) (*Account, error) {
	if err := event.Validate(); err != nil {
		return nil, withMeta(ErrInvalidInput, map[string]any{"validation": err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.accounts.FindByEmail(ctx, event.Email); err == nil {
		return nil, withMeta(ErrEmailAlreadyRegistered, map[string]any{"email": event.Email})
	} else if !IsNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	externalID, err := h.registrar.Register(ctx, event.Email, event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "identity provider rejected registration")
	}

	// failures logged against the email before the account existed do not count
	createdAt := h.now().UTC()
	account := &Account{
		Email:           event.Email,
		ExternalID:      externalID,
		FirstName:       event.FirstName,
		LastName:        event.LastName,
		Role:            RoleUser,
		Status:          AccountStatusActive,
		StatusChangedAt: &createdAt,
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			account.ID = id
		}
	}

	created, err := h.accounts.Create(ctx, account)
	if err != nil {
		h.logger.Error("account creation failed after provider registration", "email", event.Email, "external_id", externalID, "error", err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{ID: created.ID.String(), Type: "account"},
		AccountID: created.ID.String(),
		Email:     created.Email,
	})

	return created, nil
}
