package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Attempts() Attempts
	StateChanges() StateChangeLog
	Credentials() CredentialStore
	Migrate(ctx context.Context) error
}

type mngr struct {
	db           *bun.DB
	accounts     Accounts
	attempts     Attempts
	stateChanges StateChangeLog
	credentials  CredentialStore
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		accounts:     NewAccountsRepository(db),
		attempts:     NewAttemptsRepository(db),
		stateChanges: NewStateChangesRepository(db),
		credentials:  NewCredentialsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.attempts == nil {
		return errors.New("repository attempts should be initialized")
	}

	if m.stateChanges == nil {
		return errors.New("repository stateChanges should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Migrate creates the lockout tables when they do not exist.
func (m mngr) Migrate(ctx context.Context) error {
	models := []any{
		(*Account)(nil),
		(*LoginAttempt)(nil),
		(*AccountStateChange)(nil),
		(*Credential)(nil),
	}

	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			if _, err := tx.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}

		_, err := tx.NewCreateIndex().
			Model((*LoginAttempt)(nil)).
			Index("idx_login_attempts_email").
			IfNotExists().
			Column("email", "attempted_at").
			Exec(ctx)
		return err
	})
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Attempts() Attempts {
	return m.attempts
}

func (m mngr) StateChanges() StateChangeLog {
	return m.stateChanges
}

func (m mngr) Credentials() CredentialStore {
	return m.credentials
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
